package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

// runner drives one execution on its own goroutine. Pause and cancel are
// signals checked between steps: an in-flight activity call is never
// interrupted, so lifecycle changes take effect at the next step boundary.
type runner struct {
	exec   *Execution
	def    *workflow.Config
	pause  atomic.Bool
	cancel atomic.Bool
	done   chan struct{}
}

// Manager owns the execution state machine. Each started execution runs on
// an independent goroutine; executions share no mutable state except through
// the repository.
type Manager struct {
	repo     Repository
	defs     workflow.Store
	executor *task.Executor

	mu      sync.Mutex
	running map[core.ID]*runner
	wg      sync.WaitGroup
}

func NewManager(repo Repository, defs workflow.Store, executor *task.Executor) *Manager {
	return &Manager{
		repo:     repo,
		defs:     defs,
		executor: executor,
		running:  make(map[core.ID]*runner),
	}
}

// Start transitions a pending execution to running and begins driving its
// steps asynchronously.
func (m *Manager) Start(ctx context.Context, exec *Execution, def *workflow.Config) error {
	if err := exec.TransitionTo(core.StatusRunning); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, exec); err != nil {
		return fmt.Errorf("persisting running status: %w", err)
	}
	return m.launch(ctx, exec, def)
}

func (m *Manager) launch(ctx context.Context, exec *Execution, def *workflow.Config) error {
	r := &runner{exec: exec, def: def, done: make(chan struct{})}
	m.mu.Lock()
	if _, exists := m.running[exec.ExecID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("execution %s is already running", exec.ExecID)
	}
	m.running[exec.ExecID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	// The runner outlives the caller's request scope; keep context values
	// (logger) but drop the caller's cancelation.
	runCtx := context.WithoutCancel(ctx)
	go m.run(runCtx, r)
	return nil
}

func (m *Manager) run(ctx context.Context, r *runner) {
	defer func() {
		m.mu.Lock()
		delete(m.running, r.exec.ExecID)
		m.mu.Unlock()
		close(r.done)
		m.wg.Done()
	}()

	log := logger.FromContext(ctx).With("exec_id", r.exec.ExecID, "workflow", r.exec.WorkflowName)
	exec := r.exec
	def := r.def

	for exec.CurrentStepIndex < len(def.Steps) {
		if r.cancel.Load() {
			m.finishCanceled(ctx, exec, def, log)
			return
		}
		if r.pause.Load() {
			if err := exec.TransitionTo(core.StatusPaused); err != nil {
				log.Error("pause transition rejected", "error", err)
				return
			}
			if err := m.repo.Update(ctx, exec); err != nil {
				log.Error("failed to persist paused status", "error", err)
			}
			log.Info("execution paused", "current_step_index", exec.CurrentStepIndex)
			return
		}

		step := &def.Steps[exec.CurrentStepIndex]
		stepStarted := time.Now().UTC()
		result, err := m.executor.Execute(ctx, step, exec.Context)
		if err != nil {
			// Engine faults never reach the attempt loop; synthesize the
			// record so history still shows where the execution died.
			rec := task.FailedRecord(step.Name, 0, stepStarted, err, core.CodePermanent)
			rec.ExecID = exec.ExecID
			exec.Error = core.NewError(err, core.CodePermanent, map[string]any{"step": step.Name})
			m.finishFailed(ctx, exec, []*task.Record{rec}, log)
			return
		}
		for _, rec := range result.Records {
			rec.ExecID = exec.ExecID
		}

		if result.Failed() {
			exec.Error = result.Error
			m.finishFailed(ctx, exec, result.Records, log)
			return
		}

		if err := core.MergeOutput(exec.Context, step.Name, result.Output); err != nil {
			exec.Error = core.NewError(err, core.CodePermanent, map[string]any{"step": step.Name})
			m.finishFailed(ctx, exec, result.Records, log)
			return
		}
		exec.CurrentStepIndex++

		if exec.CurrentStepIndex == len(def.Steps) {
			// A cancel that landed while the final step was in flight still
			// wins; the step's records are kept so history shows what ran.
			if r.cancel.Load() {
				if err := exec.TransitionTo(core.StatusCanceled); err != nil {
					log.Error("cancel transition rejected", "error", err)
					return
				}
				if err := m.repo.UpdateWithRecords(ctx, exec, result.Records); err != nil {
					log.Error("failed to persist canceled execution", "error", err)
				}
				log.Info("execution canceled", "skipped_steps", 0)
				return
			}
			if err := exec.TransitionTo(core.StatusSuccess); err != nil {
				log.Error("completion transition rejected", "error", err)
				return
			}
			if err := m.repo.UpdateWithRecords(ctx, exec, result.Records); err != nil {
				log.Error("failed to persist completed execution", "error", err)
			}
			log.Info("execution completed", "steps", len(def.Steps))
			return
		}

		if err := m.repo.UpdateWithRecords(ctx, exec, result.Records); err != nil {
			log.Error("failed to persist step progress", "error", err, "step", step.Name)
			exec.Error = core.NewError(err, core.CodePermanent, map[string]any{"step": step.Name})
			m.finishFailed(ctx, exec, result.Records, log)
			return
		}
	}
}

func (m *Manager) finishFailed(ctx context.Context, exec *Execution, records []*task.Record, log logger.Logger) {
	if err := exec.TransitionTo(core.StatusFailed); err != nil {
		log.Error("failed transition rejected", "error", err)
		return
	}
	if err := m.repo.UpdateWithRecords(ctx, exec, records); err != nil {
		log.Error("failed to persist failed execution", "error", err)
	}
	log.Warn("execution failed", "error", exec.Error)
}

// finishCanceled records skipped step records for the remainder of the plan
// so history shows which steps never ran.
func (m *Manager) finishCanceled(ctx context.Context, exec *Execution, def *workflow.Config, log logger.Logger) {
	var skipped []*task.Record
	for i := exec.CurrentStepIndex; i < len(def.Steps); i++ {
		rec := task.SkippedRecord(def.Steps[i].Name)
		rec.ExecID = exec.ExecID
		skipped = append(skipped, rec)
	}
	if err := exec.TransitionTo(core.StatusCanceled); err != nil {
		log.Error("cancel transition rejected", "error", err)
		return
	}
	if err := m.repo.UpdateWithRecords(ctx, exec, skipped); err != nil {
		log.Error("failed to persist canceled execution", "error", err)
	}
	log.Info("execution canceled", "skipped_steps", len(skipped))
}

// Pause requests a halt at the next step boundary. Pausing an already paused
// execution is a no-op.
func (m *Manager) Pause(ctx context.Context, execID core.ID) error {
	m.mu.Lock()
	if r, active := m.running[execID]; active {
		r.pause.Store(true)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	exec, err := m.repo.Get(ctx, execID)
	if err != nil {
		return err
	}
	switch exec.Status {
	case core.StatusPaused:
		return nil
	case core.StatusRunning:
		// No live runner (e.g. after a restart); persist the pause directly.
		if err := exec.TransitionTo(core.StatusPaused); err != nil {
			return err
		}
		return m.repo.Update(ctx, exec)
	default:
		return fmt.Errorf("%w: cannot pause execution in status %s", ErrInvalidStateTransition, exec.Status)
	}
}

// Resume continues a paused execution from its current step index.
func (m *Manager) Resume(ctx context.Context, execID core.ID) error {
	exec, err := m.repo.Get(ctx, execID)
	if err != nil {
		return err
	}
	if exec.Status != core.StatusPaused {
		return fmt.Errorf("%w: cannot resume execution in status %s", ErrInvalidStateTransition, exec.Status)
	}
	def, err := m.defs.Get(ctx, exec.WorkflowID, exec.TenantID)
	if err != nil {
		return err
	}
	if err := exec.TransitionTo(core.StatusRunning); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, exec); err != nil {
		return fmt.Errorf("persisting resumed status: %w", err)
	}
	return m.launch(ctx, exec, def)
}

// Cancel terminates an execution. A pending execution is canceled
// immediately with zero step records; a running one finishes its in-flight
// step first; a paused one is canceled with skipped records for the
// remaining plan.
func (m *Manager) Cancel(ctx context.Context, execID core.ID) error {
	m.mu.Lock()
	if r, active := m.running[execID]; active {
		r.cancel.Store(true)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	exec, err := m.repo.Get(ctx, execID)
	if err != nil {
		return err
	}
	switch exec.Status {
	case core.StatusPending:
		if err := exec.TransitionTo(core.StatusCanceled); err != nil {
			return err
		}
		return m.repo.Update(ctx, exec)
	case core.StatusPaused, core.StatusRunning:
		def, err := m.defs.Get(ctx, exec.WorkflowID, exec.TenantID)
		if err != nil {
			return err
		}
		log := logger.FromContext(ctx).With("exec_id", exec.ExecID, "workflow", exec.WorkflowName)
		m.finishCanceled(ctx, exec, def, log)
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel execution in status %s", ErrInvalidStateTransition, exec.Status)
	}
}

// WaitFor blocks until the runner for execID finishes or ctx is done. It is
// a synchronization aid for tests and graceful shutdown; executions without
// an active runner return immediately.
func (m *Manager) WaitFor(ctx context.Context, execID core.ID) error {
	m.mu.Lock()
	r, active := m.running[execID]
	m.mu.Unlock()
	if !active {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for all in-flight runners to reach a step boundary and
// exit.
func (m *Manager) Shutdown() {
	m.wg.Wait()
}
