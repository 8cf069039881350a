package model

import "time"

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// StageStatus is the status of a single pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
)

// Pipeline stage names, in execution order.
const (
	Stage1 = "stage1" // pre-processing (OCR)
	Stage2 = "stage2" // anchor parse + validate
	Stage3 = "stage3" // LLM fallback
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{Stage1, Stage2, Stage3}

// LLM availability outcomes recorded on the job and working state.
const (
	LLMStatusUnset       = ""
	LLMStatusOK          = "ok"
	LLMStatusUnavailable = "unavailable"
)

// StageState tracks one stage of one job.
type StageState struct {
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Job is one unit of review work over a single source document.
type Job struct {
	ID         string                `json:"id"`
	Name       string                `json:"name,omitempty"`
	Status     JobStatus             `json:"status"`
	Stages     map[string]StageState `json:"pipeline"`
	LLMModel   string                `json:"llm_model,omitempty"`
	LLMStatus  string                `json:"llm_status,omitempty"`
	LastError  string                `json:"last_error,omitempty"`
	ExcelRow   int                   `json:"excel_row,omitempty"`
	ExportedAt *time.Time            `json:"excel_exported_at,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// NewStages returns a fresh stage map with every stage pending.
func NewStages() map[string]StageState {
	m := make(map[string]StageState, len(Stages))
	for _, s := range Stages {
		m[s] = StageState{Status: StageStatusPending}
	}
	return m
}

// SetStage records a stage transition on the job.
func (j *Job) SetStage(stage string, status StageStatus, message string) {
	if j.Stages == nil {
		j.Stages = NewStages()
	}
	j.Stages[stage] = StageState{Status: status, Message: message}
}

// Stage returns the state of the named stage, defaulting to pending.
func (j *Job) Stage(stage string) StageState {
	if st, ok := j.Stages[stage]; ok {
		return st
	}
	return StageState{Status: StageStatusPending}
}
