package execution

import (
	"fmt"
	"time"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/engine/workflow"
)

var (
	// ErrInvalidStateTransition is returned for lifecycle operations that the
	// transition table does not allow, e.g. pausing a completed execution.
	ErrInvalidStateTransition = fmt.Errorf("invalid state transition")
	// ErrExecutionNotFound is returned when no execution matches the ID.
	ErrExecutionNotFound = fmt.Errorf("execution not found")
)

// Execution is one run instance of a workflow definition. The engine owns
// Context and Status exclusively; nothing else mutates them outside the
// state machine's transition API.
type Execution struct {
	ExecID           core.ID         `json:"exec_id"            db:"exec_id"`
	WorkflowID       string          `json:"workflow_id"        db:"workflow_id"`
	WorkflowName     string          `json:"workflow_name"      db:"workflow_name"`
	TenantID         string          `json:"tenant_id"          db:"tenant_id"`
	Status           core.StatusType `json:"status"             db:"status"`
	CurrentStepIndex int             `json:"current_step_index" db:"current_step_index"`
	Input            core.Input      `json:"input,omitempty"`
	Context          map[string]any  `json:"context,omitempty"`
	Error            *core.Error     `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"             db:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt        time.Time       `json:"updated_at"             db:"updated_at"`

	// Steps is the append-only attempt history, populated on reads.
	Steps []*task.Record `json:"steps,omitempty"`
}

// New creates a pending execution from a definition snapshot. The execution
// context starts as a deep copy of the input, so templates like
// {{projectId}} resolve against the trigger payload from step one.
func New(def *workflow.Config, input core.Input) (*Execution, error) {
	execContext, err := core.DeepCopyMap(input.AsMap())
	if err != nil {
		return nil, fmt.Errorf("seeding execution context: %w", err)
	}
	now := time.Now().UTC()
	return &Execution{
		ExecID:       core.NewID(),
		WorkflowID:   def.ID,
		WorkflowName: def.Name,
		TenantID:     def.TenantID,
		Status:       core.StatusPending,
		Input:        input,
		Context:      execContext,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanTransition implements the lifecycle table:
//
//	Pending -> Running | Canceled
//	Running -> Paused | Success | Failed | Canceled
//	Paused  -> Running | Canceled
//
// Terminal statuses never transition again.
func CanTransition(from, to core.StatusType) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case core.StatusPending:
		return to == core.StatusRunning || to == core.StatusCanceled
	case core.StatusRunning:
		return to == core.StatusPaused || to == core.StatusSuccess ||
			to == core.StatusFailed || to == core.StatusCanceled
	case core.StatusPaused:
		return to == core.StatusRunning || to == core.StatusCanceled
	default:
		return false
	}
}

// TransitionTo moves the execution to the given status, maintaining the
// started/completed timestamps.
func (e *Execution) TransitionTo(status core.StatusType) error {
	if !CanTransition(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, e.Status, status)
	}
	now := time.Now().UTC()
	if status == core.StatusRunning && e.StartedAt == nil {
		e.StartedAt = &now
	}
	if status.IsTerminal() {
		e.CompletedAt = &now
	}
	e.Status = status
	e.UpdatedAt = now
	return nil
}
