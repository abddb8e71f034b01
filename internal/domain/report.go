package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeBackup  Mode = "backup"
	ModeRestore Mode = "restore"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type StageResult struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Report is the machine-readable summary of one pipeline run.
type Report struct {
	RunID      string        `json:"run_id"`
	Mode       Mode          `json:"mode"`
	Schema     string        `json:"schema"`
	Bucket     string        `json:"bucket"`
	Status     Status        `json:"status"`
	Stage      Stage         `json:"failed_stage,omitempty"`
	Kind       Kind          `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	Command    string        `json:"command,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Warnings   []string      `json:"warnings,omitempty"`
	Artifacts  []Artifact    `json:"artifacts,omitempty"`
	Stages     []StageResult `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
}

func NewReport(mode Mode, schema, bucket string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Schema:    schema,
		Bucket:    bucket,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

func (r *Report) AddStage(stage Stage, d time.Duration, err error) {
	res := StageResult{Stage: stage, Duration: d}
	if err != nil {
		res.Error = err.Error()
	}
	r.Stages = append(r.Stages, res)
}

func (r *Report) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Report) Succeed() {
	r.Status = StatusSucceeded
	r.ExitCode = ExitOK
	r.FinishedAt = time.Now().UTC()
}

func (r *Report) Fail(err error) {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.ExitCode = ExitCode(err)
	r.Command = CommandOf(err)
	var se *StageError
	if errors.As(err, &se) {
		r.Stage = se.Stage
		r.Kind = se.Kind
	}
	r.FinishedAt = time.Now().UTC()
}

func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
