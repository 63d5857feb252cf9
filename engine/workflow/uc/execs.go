package uc

import (
	"context"
	"errors"
	"strings"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
)

func parseExecID(raw string) (core.ID, error) {
	id, err := core.ParseID(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Join(ErrInvalidInput, err)
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// GetExecution
// -----------------------------------------------------------------------------

type GetExecutionInput struct {
	ExecID string
}

type GetExecutionOutput struct {
	Execution *execution.Execution
}

type GetExecution struct {
	repo execution.Repository
}

func NewGetExecution(repo execution.Repository) *GetExecution {
	return &GetExecution{repo: repo}
}

func (uc *GetExecution) Execute(ctx context.Context, in *GetExecutionInput) (*GetExecutionOutput, error) {
	if in == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("execution ID is required"))
	}
	execID, err := parseExecID(in.ExecID)
	if err != nil {
		return nil, err
	}
	exec, err := uc.repo.Get(ctx, execID)
	if err != nil {
		if errors.Is(err, execution.ErrExecutionNotFound) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, err
	}
	return &GetExecutionOutput{Execution: exec}, nil
}

// -----------------------------------------------------------------------------
// ListExecutions
// -----------------------------------------------------------------------------

type ListExecutionsInput struct {
	WorkflowName string
	Status       string
	Limit        int
}

type ListExecutionsOutput struct {
	Executions []*execution.Execution
}

type ListExecutions struct {
	repo execution.Repository
}

func NewListExecutions(repo execution.Repository) *ListExecutions {
	return &ListExecutions{repo: repo}
}

func (uc *ListExecutions) Execute(ctx context.Context, in *ListExecutionsInput) (*ListExecutionsOutput, error) {
	filter := execution.Filter{}
	if in != nil {
		filter.WorkflowName = strings.TrimSpace(in.WorkflowName)
		filter.Status = core.StatusType(strings.ToUpper(strings.TrimSpace(in.Status)))
		filter.Limit = in.Limit
	}
	execs, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListExecutionsOutput{Executions: execs}, nil
}

// -----------------------------------------------------------------------------
// Lifecycle operations
// -----------------------------------------------------------------------------

type PauseExecution struct {
	manager *execution.Manager
}

func NewPauseExecution(manager *execution.Manager) *PauseExecution {
	return &PauseExecution{manager: manager}
}

func (uc *PauseExecution) Execute(ctx context.Context, rawID string) error {
	execID, err := parseExecID(rawID)
	if err != nil {
		return err
	}
	return uc.manager.Pause(ctx, execID)
}

type ResumeExecution struct {
	manager *execution.Manager
}

func NewResumeExecution(manager *execution.Manager) *ResumeExecution {
	return &ResumeExecution{manager: manager}
}

func (uc *ResumeExecution) Execute(ctx context.Context, rawID string) error {
	execID, err := parseExecID(rawID)
	if err != nil {
		return err
	}
	return uc.manager.Resume(ctx, execID)
}

type CancelExecution struct {
	manager *execution.Manager
}

func NewCancelExecution(manager *execution.Manager) *CancelExecution {
	return &CancelExecution{manager: manager}
}

func (uc *CancelExecution) Execute(ctx context.Context, rawID string) error {
	execID, err := parseExecID(rawID)
	if err != nil {
		return err
	}
	return uc.manager.Cancel(ctx, execID)
}
