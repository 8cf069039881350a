// Package llm implements the stage-3 fallback collaborator: given stage-2
// evidence and a list of target fields, it asks a language model for
// candidate values. Unavailability of the model is a recognized outcome,
// never an error.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/config"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/pkg/ollama"
)

// Request asks for suggestions on the target fields using the named model.
type Request struct {
	Model    string
	Fields   []string
	Evidence map[string]string // field -> supporting text from stage 2
}

// Result is the outcome of one fallback call. Unavailable means the
// collaborator could not be reached or the model is absent; the pipeline
// degrades instead of failing.
type Result struct {
	Suggestions map[string]model.Suggestion
	Unavailable bool
	Reason      string
}

// Suggester is the stage-3 collaborator contract.
type Suggester interface {
	Suggest(ctx context.Context, req Request) (*Result, error)
}

// NewSuggester creates a Suggester based on config.
func NewSuggester(cfg config.LLMConfig) (Suggester, error) {
	switch cfg.Provider {
	case "ollama", "":
		var opts []ollama.Option
		if cfg.OllamaBaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(cfg.OllamaBaseURL))
		}
		return NewOllamaSuggester(ollama.NewClient(opts...), cfg.RequestsPerSec), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, eris.New("llm: anthropic provider requires anthropic_key")
		}
		return NewAnthropicSuggester(cfg.AnthropicKey, cfg.AnthropicModel, cfg.RequestsPerSec), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// buildPrompt renders the extraction prompt for the target fields.
func buildPrompt(req Request) string {
	fields := append([]string(nil), req.Fields...)
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("You are reviewing a commercial lease. For each requested field, find the value in the evidence below.\n")
	b.WriteString("Respond with a single JSON object mapping field name to {\"value\": ..., \"quote\": \"supporting text\", \"page\": page number or null}.\n")
	b.WriteString("Use null for value when the evidence does not contain it. Do not invent values.\n\nFields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nEvidence:\n")
	for _, f := range fields {
		if ev := req.Evidence[f]; ev != "" {
			fmt.Fprintf(&b, "%s:\n%s\n\n", f, ev)
		}
	}
	return b.String()
}

// parseSuggestions decodes a model response into per-field suggestions.
// Code fences and leading prose are tolerated; fields outside the request
// are dropped.
func parseSuggestions(raw string, fields []string) (map[string]model.Suggestion, error) {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	if i := strings.LastIndex(text, "}"); i >= 0 {
		text = text[:i+1]
	}

	var decoded map[string]struct {
		Value any    `json:"value"`
		Quote string `json:"quote"`
		Page  *int   `json:"page"`
	}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, eris.Wrap(err, "llm: parse model response")
	}

	wanted := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		wanted[f] = struct{}{}
	}

	out := make(map[string]model.Suggestion, len(decoded))
	for field, s := range decoded {
		if _, ok := wanted[field]; !ok {
			continue
		}
		if s.Value == nil {
			continue
		}
		out[field] = model.Suggestion{
			Field: field,
			Value: s.Value,
			Quote: s.Quote,
			Page:  s.Page,
		}
	}
	return out, nil
}
