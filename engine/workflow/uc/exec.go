package uc

import (
	"context"
	"errors"
	"strings"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/scheduler"
	"github.com/opsai/opsflow/engine/workflow"
)

// -----------------------------------------------------------------------------
// ExecuteWorkflow
// -----------------------------------------------------------------------------

type ExecuteWorkflowInput struct {
	TenantID     string
	WorkflowName string
	Input        core.Input
}

type ExecuteWorkflowOutput struct {
	Execution *execution.Execution
}

type ExecuteWorkflow struct {
	dispatcher *scheduler.Dispatcher
}

func NewExecuteWorkflow(dispatcher *scheduler.Dispatcher) *ExecuteWorkflow {
	return &ExecuteWorkflow{dispatcher: dispatcher}
}

func (uc *ExecuteWorkflow) Execute(ctx context.Context, in *ExecuteWorkflowInput) (*ExecuteWorkflowOutput, error) {
	if in == nil || strings.TrimSpace(in.WorkflowName) == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("workflow name is required"))
	}
	exec, err := uc.dispatcher.Dispatch(ctx, strings.TrimSpace(in.WorkflowName), strings.TrimSpace(in.TenantID), in.Input)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, err
	}
	return &ExecuteWorkflowOutput{Execution: exec}, nil
}

// -----------------------------------------------------------------------------
// PublishEvent
// -----------------------------------------------------------------------------

type PublishEventInput struct {
	TenantID string
	Event    string
	Payload  core.Input
}

type PublishEventOutput struct {
	ExecutionIDs []*core.ID
}

type PublishEvent struct {
	bus *scheduler.EventBus
}

func NewPublishEvent(bus *scheduler.EventBus) *PublishEvent {
	return &PublishEvent{bus: bus}
}

func (uc *PublishEvent) Execute(ctx context.Context, in *PublishEventInput) (*PublishEventOutput, error) {
	if in == nil || strings.TrimSpace(in.Event) == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("event name is required"))
	}
	ids, err := uc.bus.Publish(ctx, strings.TrimSpace(in.Event), strings.TrimSpace(in.TenantID), in.Payload)
	if err != nil {
		return nil, err
	}
	return &PublishEventOutput{ExecutionIDs: ids}, nil
}
