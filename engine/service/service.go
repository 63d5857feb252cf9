package service

import (
	"context"
	"time"

	"github.com/opsai/opsflow/engine/activity"
	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/scheduler"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/engine/workflow/uc"
)

// Service is the engine facade. It wires the definition store, execution
// repository, executor, and trigger sources together and exposes the
// operations transports call. All methods validate input and delegate; domain
// rules live in the packages below.
type Service struct {
	registry     *activity.Registry
	defs         workflow.Store
	repo         execution.Repository
	manager      *execution.Manager
	dispatcher   *scheduler.Dispatcher
	cron         *scheduler.CronScheduler
	bus          *scheduler.EventBus
	syncInterval time.Duration
}

// Options configures engine behavior shared by all executions.
type Options struct {
	Defaults task.Defaults
	// SyncInterval is how often schedule triggers are reconciled against the
	// definition store while the service runs. Zero disables the reconcile
	// loop; explicit Sync calls on register/deactivate still happen.
	SyncInterval time.Duration
}

func New(ctx context.Context, defs workflow.Store, repo execution.Repository, registry *activity.Registry, opts Options) *Service {
	if opts.Defaults == (task.Defaults{}) {
		opts.Defaults = task.DefaultDefaults()
	}
	executor := task.NewExecutor(registry, opts.Defaults)
	manager := execution.NewManager(repo, defs, executor)
	dispatcher := scheduler.NewDispatcher(defs, repo, manager)
	return &Service{
		registry:     registry,
		defs:         defs,
		repo:         repo,
		manager:      manager,
		dispatcher:   dispatcher,
		cron:         scheduler.NewCronScheduler(ctx, dispatcher, defs),
		bus:          scheduler.NewEventBus(dispatcher, defs),
		syncInterval: opts.SyncInterval,
	}
}

// Registry exposes the activity registry for host applications to register
// their handlers before the service starts dispatching.
func (s *Service) Registry() *activity.Registry {
	return s.registry
}

// Start syncs schedule triggers, begins firing them, and keeps the schedule
// entries reconciled on the configured interval.
func (s *Service) Start(ctx context.Context) error {
	if err := s.cron.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.cron.StartReconcile(ctx, s.syncInterval)
	return nil
}

// Stop halts the cron scheduler and waits for in-flight executions to reach a
// step boundary and finish or pause.
func (s *Service) Stop() {
	s.cron.Stop()
	s.manager.Shutdown()
}

// -----------------------------------------------------------------------------
// Definitions
// -----------------------------------------------------------------------------

func (s *Service) RegisterWorkflow(ctx context.Context, tenantID string, def *workflow.Config) (string, error) {
	out, err := uc.NewRegister(s.defs).Execute(ctx, &uc.RegisterInput{TenantID: tenantID, Config: def})
	if err != nil {
		return "", err
	}
	if err := s.cron.Sync(ctx); err != nil {
		return "", err
	}
	return out.WorkflowID, nil
}

func (s *Service) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*workflow.Config, error) {
	out, err := uc.NewGet(s.defs).Execute(ctx, &uc.GetInput{TenantID: tenantID, WorkflowID: workflowID})
	if err != nil {
		return nil, err
	}
	return out.Config, nil
}

func (s *Service) ListWorkflows(ctx context.Context, tenantID string) ([]*workflow.Config, error) {
	out, err := uc.NewList(s.defs).Execute(ctx, &uc.ListInput{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

func (s *Service) DeactivateWorkflow(ctx context.Context, workflowID string) error {
	if err := uc.NewDeactivate(s.defs).Execute(ctx, &uc.DeactivateInput{WorkflowID: workflowID}); err != nil {
		return err
	}
	return s.cron.Sync(ctx)
}

// -----------------------------------------------------------------------------
// Executions
// -----------------------------------------------------------------------------

func (s *Service) ExecuteWorkflow(ctx context.Context, tenantID, name string, input core.Input) (*execution.Execution, error) {
	out, err := uc.NewExecuteWorkflow(s.dispatcher).Execute(ctx, &uc.ExecuteWorkflowInput{
		TenantID:     tenantID,
		WorkflowName: name,
		Input:        input,
	})
	if err != nil {
		return nil, err
	}
	return out.Execution, nil
}

func (s *Service) GetExecution(ctx context.Context, execID string) (*execution.Execution, error) {
	out, err := uc.NewGetExecution(s.repo).Execute(ctx, &uc.GetExecutionInput{ExecID: execID})
	if err != nil {
		return nil, err
	}
	return out.Execution, nil
}

func (s *Service) ListExecutions(ctx context.Context, workflowName, status string, limit int) ([]*execution.Execution, error) {
	out, err := uc.NewListExecutions(s.repo).Execute(ctx, &uc.ListExecutionsInput{
		WorkflowName: workflowName,
		Status:       status,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}
	return out.Executions, nil
}

func (s *Service) PauseExecution(ctx context.Context, execID string) error {
	return uc.NewPauseExecution(s.manager).Execute(ctx, execID)
}

func (s *Service) ResumeExecution(ctx context.Context, execID string) error {
	return uc.NewResumeExecution(s.manager).Execute(ctx, execID)
}

func (s *Service) CancelExecution(ctx context.Context, execID string) error {
	return uc.NewCancelExecution(s.manager).Execute(ctx, execID)
}

func (s *Service) PublishEvent(ctx context.Context, tenantID, event string, payload core.Input) ([]*core.ID, error) {
	out, err := uc.NewPublishEvent(s.bus).Execute(ctx, &uc.PublishEventInput{
		TenantID: tenantID,
		Event:    event,
		Payload:  payload,
	})
	if err != nil {
		return nil, err
	}
	return out.ExecutionIDs, nil
}

// WaitForExecution blocks until the execution's runner exits. Intended for
// synchronous callers and tests.
func (s *Service) WaitForExecution(ctx context.Context, execID core.ID) error {
	return s.manager.WaitFor(ctx, execID)
}
