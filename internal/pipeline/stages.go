package pipeline

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/config"
)

// Preprocessor is the stage-1 collaborator: it turns the source document
// into text artifacts in the output directory.
type Preprocessor interface {
	Preprocess(ctx context.Context, inputPDF, outDir string) error
}

// Extractor is the stage-2 collaborator: it parses and validates the stage-1
// artifacts, writing the validated row, suggestions, anchors and review
// queue into the output directory.
type Extractor interface {
	Extract(ctx context.Context, stage1Dir, outDir string) error
}

// CommandPreprocessor shells out to an external OCR binary.
type CommandPreprocessor struct {
	bin  string
	args []string
}

// NewCommandPreprocessor creates a subprocess-backed Preprocessor.
func NewCommandPreprocessor(cmd config.StageCommand) *CommandPreprocessor {
	bin := cmd.Bin
	if bin == "" {
		bin = "lease-ocr"
	}
	return &CommandPreprocessor{bin: bin, args: cmd.Args}
}

func (p *CommandPreprocessor) Preprocess(ctx context.Context, inputPDF, outDir string) error {
	return runCommand(ctx, p.bin, append(p.args, inputPDF, outDir))
}

// CommandExtractor shells out to an external parse/validate binary.
type CommandExtractor struct {
	bin  string
	args []string
}

// NewCommandExtractor creates a subprocess-backed Extractor.
func NewCommandExtractor(cmd config.StageCommand) *CommandExtractor {
	bin := cmd.Bin
	if bin == "" {
		bin = "lease-extract"
	}
	return &CommandExtractor{bin: bin, args: cmd.Args}
}

func (e *CommandExtractor) Extract(ctx context.Context, stage1Dir, outDir string) error {
	return runCommand(ctx, e.bin, append(e.args, stage1Dir, outDir))
}

func runCommand(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "pipeline: %s failed: %s", bin, stderr.String())
	}
	return nil
}
