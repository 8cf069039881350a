// Package jobfs owns the on-disk layout of a job: the input artifact, one
// directory per pipeline stage holding that stage's raw output unchanged,
// the final merged output, the working state document and the audit log.
package jobfs

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Artifact file names within a job directory.
const (
	InputPDFName       = "lease.pdf"
	WorkingStateName   = "working_state.json"
	AuditLogName       = "audit_log.jsonl"
	FinalName          = "lease_final.json"
	ValidatedName      = "lease_validated.json"
	ExtractedName      = "lease_extracted.json"
	AnchorsName        = "lease_anchors.json"
	ReviewQueueName    = "review_queue.json"
	LLMSuggestionsName = "lease_llm_suggestions.json"
)

// Paths resolves every artifact location for one job.
type Paths struct {
	Root      string
	InputDir  string
	Stage1Dir string
	Stage2Dir string
	Stage3Dir string
	FinalDir  string
}

// For returns the Paths of a job under the given jobs root.
func For(jobsRoot, jobID string) Paths {
	root := filepath.Join(jobsRoot, jobID)
	return Paths{
		Root:      root,
		InputDir:  filepath.Join(root, "input"),
		Stage1Dir: filepath.Join(root, "stage1"),
		Stage2Dir: filepath.Join(root, "stage2"),
		Stage3Dir: filepath.Join(root, "stage3"),
		FinalDir:  filepath.Join(root, "final"),
	}
}

// StageDir returns the raw-output directory for the named stage.
func (p Paths) StageDir(stage string) string {
	switch stage {
	case "stage1":
		return p.Stage1Dir
	case "stage2":
		return p.Stage2Dir
	case "stage3":
		return p.Stage3Dir
	}
	return ""
}

// InputPDF is the source document location.
func (p Paths) InputPDF() string { return filepath.Join(p.InputDir, InputPDFName) }

// WorkingState is the durable working state document.
func (p Paths) WorkingState() string { return filepath.Join(p.Root, WorkingStateName) }

// AuditLog is the append-only audit log.
func (p Paths) AuditLog() string { return filepath.Join(p.Root, AuditLogName) }

// FinalJSON is the merged output written on export.
func (p Paths) FinalJSON() string { return filepath.Join(p.FinalDir, FinalName) }

// Exists reports whether the job directory exists on disk.
func (p Paths) Exists() bool {
	_, err := os.Stat(p.Root)
	return err == nil
}

// EnsureDirs creates the full job directory tree.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.InputDir, p.Stage1Dir, p.Stage2Dir, p.Stage3Dir, p.FinalDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "jobfs: mkdir %s", dir)
		}
	}
	return nil
}

// ResetStageDirs clears and recreates the raw-output directories for the
// named stages. Working state and the audit log are never touched.
func (p Paths) ResetStageDirs(stages ...string) error {
	for _, stage := range stages {
		dir := p.StageDir(stage)
		if dir == "" {
			return eris.Errorf("jobfs: unknown stage %q", stage)
		}
		if err := os.RemoveAll(dir); err != nil {
			return eris.Wrapf(err, "jobfs: reset %s", dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "jobfs: recreate %s", dir)
		}
	}
	return nil
}

// ResetFinal removes any previously exported final output so a stale merge
// never outlives a pipeline re-run.
func (p Paths) ResetFinal() error {
	if err := os.RemoveAll(p.FinalDir); err != nil {
		return eris.Wrap(err, "jobfs: reset final")
	}
	return eris.Wrap(os.MkdirAll(p.FinalDir, 0o755), "jobfs: recreate final")
}

// Remove deletes the entire job directory tree.
func (p Paths) Remove() error {
	return eris.Wrapf(os.RemoveAll(p.Root), "jobfs: remove %s", p.Root)
}
