package task

import (
	"time"

	"github.com/opsai/opsflow/engine/core"
)

// Record is one step attempt in an execution's history. Records are
// append-only: they are never rewritten, so history stays a trustworthy
// audit trail regardless of what the execution's current status says.
type Record struct {
	ID         core.ID           `json:"id"          db:"id"`
	ExecID     core.ID           `json:"exec_id"     db:"exec_id"`
	StepName   string            `json:"step_name"   db:"step_name"`
	Attempt    int               `json:"attempt"     db:"attempt"`
	Status     core.RecordStatus `json:"status"      db:"status"`
	StartedAt  time.Time         `json:"started_at"  db:"started_at"`
	FinishedAt time.Time         `json:"finished_at" db:"finished_at"`
	Output     core.Output       `json:"output,omitempty"`
	Error      *core.Error       `json:"error,omitempty"`
}

func newRecord(stepName string, attempt int, startedAt time.Time) *Record {
	return &Record{
		ID:        core.NewID(),
		StepName:  stepName,
		Attempt:   attempt,
		StartedAt: startedAt,
	}
}

// FailedRecord captures a failure that happened outside the attempt loop,
// such as template resolution or an engine fault, so history never loses a
// terminal step outcome.
func FailedRecord(stepName string, attempt int, startedAt time.Time, err error, code string) *Record {
	rec := newRecord(stepName, attempt, startedAt)
	rec.FinishedAt = time.Now().UTC()
	rec.Status = core.RecordFailed
	rec.Error = core.NewError(err, code, nil)
	return rec
}

// SkippedRecord marks a step that never ran because the execution was
// canceled before reaching it.
func SkippedRecord(stepName string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:         core.NewID(),
		StepName:   stepName,
		Attempt:    0,
		Status:     core.RecordSkipped,
		StartedAt:  now,
		FinishedAt: now,
	}
}

// Result is the outcome of driving one step to completion, including every
// attempt made along the way.
type Result struct {
	Output  core.Output
	Records []*Record
	Error   *core.Error
}

func (r *Result) Failed() bool {
	return r.Error != nil
}
