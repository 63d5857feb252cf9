package scheduler

import (
	"context"
	"fmt"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

// ErrWorkflowInactive is returned when a trigger fires for a definition that
// has been deactivated.
var ErrWorkflowInactive = fmt.Errorf("workflow is inactive")

// Dispatcher is the single entry point that turns a fired trigger into an
// execution. API, cron, and event triggers all funnel through Dispatch, so
// lifecycle rules (active definition, pending-first state) hold regardless of
// the trigger source.
type Dispatcher struct {
	defs    workflow.Store
	repo    execution.Repository
	manager *execution.Manager
}

func NewDispatcher(defs workflow.Store, repo execution.Repository, manager *execution.Manager) *Dispatcher {
	return &Dispatcher{defs: defs, repo: repo, manager: manager}
}

// Dispatch creates a pending execution for the named workflow and starts it.
func (d *Dispatcher) Dispatch(ctx context.Context, name, tenantID string, input core.Input) (*execution.Execution, error) {
	def, err := d.defs.GetByName(ctx, name, tenantID)
	if err != nil {
		return nil, err
	}
	return d.DispatchDefinition(ctx, def, input)
}

// DispatchDefinition starts an execution for an already-resolved definition.
func (d *Dispatcher) DispatchDefinition(ctx context.Context, def *workflow.Config, input core.Input) (*execution.Execution, error) {
	if !def.Active {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, def.Name)
	}
	exec, err := execution.New(def, input)
	if err != nil {
		return nil, err
	}
	if err := d.repo.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("persisting execution: %w", err)
	}
	if err := d.manager.Start(ctx, exec, def); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("execution dispatched",
		"exec_id", exec.ExecID, "workflow", def.Name, "trigger", def.Trigger.Type)
	return exec, nil
}
