package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Jobs     JobsConfig     `yaml:"jobs" mapstructure:"jobs"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Stages   StagesConfig   `yaml:"stages" mapstructure:"stages"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job registry backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JobsConfig configures on-disk job storage.
type JobsConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// ExportConfig configures the shared Excel workbook.
type ExportConfig struct {
	WorkbookPath string `yaml:"workbook_path" mapstructure:"workbook_path"`
	SheetName    string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// StageCommand names the external binary (plus leading args) for one stage.
type StageCommand struct {
	Bin  string   `yaml:"bin" mapstructure:"bin"`
	Args []string `yaml:"args" mapstructure:"args"`
}

// StagesConfig configures the external stage collaborators.
type StagesConfig struct {
	Preprocess StageCommand `yaml:"preprocess" mapstructure:"preprocess"`
	Extract    StageCommand `yaml:"extract" mapstructure:"extract"`
}

// LLMConfig configures the stage-3 fallback provider.
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"`
	Model          string  `yaml:"model" mapstructure:"model"`
	OllamaBaseURL  string  `yaml:"ollama_base_url" mapstructure:"ollama_base_url"`
	AnthropicKey   string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string  `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// PipelineConfig configures stage-runner behavior.
type PipelineConfig struct {
	MaxConcurrentJobs      int     `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEASEREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lease-review.db")
	v.SetDefault("jobs.root", "jobs")
	v.SetDefault("export.workbook_path", "export/lease_jobs.xlsx")
	v.SetDefault("export.sheet_name", "Lease Jobs")
	v.SetDefault("stages.preprocess.bin", "lease-ocr")
	v.SetDefault("stages.extract.bin", "lease-extract")
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "qwen2.5:7b-instruct-q4_K_M")
	v.SetDefault("llm.ollama_base_url", "http://localhost:11434")
	v.SetDefault("llm.requests_per_sec", 1.0)
	v.SetDefault("pipeline.max_concurrent_jobs", 4)
	v.SetDefault("pipeline.low_confidence_threshold", 0.7)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
