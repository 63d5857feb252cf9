package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsflow/engine/activity"
	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/infra/store"
	"github.com/opsai/opsflow/engine/scheduler"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/engine/workflow"
)

type schedulerHarness struct {
	registry   *activity.Registry
	repo       *store.MemoryRepo
	defs       *workflow.MemoryStore
	manager    *execution.Manager
	dispatcher *scheduler.Dispatcher
}

func newSchedulerHarness(t *testing.T) *schedulerHarness {
	t.Helper()
	registry := activity.NewRegistry()
	executor := task.NewExecutor(registry, task.Defaults{
		Timeout:         5 * time.Second,
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
	})
	repo := store.NewMemoryRepo()
	defs := workflow.NewMemoryStore()
	manager := execution.NewManager(repo, defs, executor)
	return &schedulerHarness{
		registry:   registry,
		repo:       repo,
		defs:       defs,
		manager:    manager,
		dispatcher: scheduler.NewDispatcher(defs, repo, manager),
	}
}

func (h *schedulerHarness) registerNoop(t *testing.T, name string) {
	t.Helper()
	err := h.registry.Register(name, func(_ context.Context, _, _ map[string]any) (core.Output, error) {
		return core.Output{"done": true}, nil
	})
	require.NoError(t, err)
}

func singleStepDef(name string, trigger workflow.Trigger) *workflow.Config {
	return &workflow.Config{
		TenantID: "acme",
		Name:     name,
		Active:   true,
		Trigger:  trigger,
		Steps: []workflow.Step{
			{Name: "only_step", Type: workflow.StepCustom, Config: map[string]any{"function": "noop"}},
		},
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("Should create and start an execution for an active workflow", func(t *testing.T) {
		h := newSchedulerHarness(t)
		ctx := context.Background()
		h.registerNoop(t, "noop")
		def := singleStepDef("onboard", workflow.Trigger{Type: workflow.TriggerAPICall})
		_, err := h.defs.Register(ctx, def)
		require.NoError(t, err)

		exec, err := h.dispatcher.Dispatch(ctx, "onboard", "acme", core.Input{"userId": "u-1"})
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		require.NoError(t, h.manager.WaitFor(waitCtx, exec.ExecID))

		stored, err := h.repo.Get(ctx, exec.ExecID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusSuccess, stored.Status)
		assert.Equal(t, "u-1", stored.Input["userId"])
	})
	t.Run("Should reject dispatching an inactive workflow", func(t *testing.T) {
		h := newSchedulerHarness(t)
		ctx := context.Background()
		def := singleStepDef("onboard", workflow.Trigger{Type: workflow.TriggerAPICall})
		id, err := h.defs.Register(ctx, def)
		require.NoError(t, err)
		require.NoError(t, h.defs.Deactivate(ctx, id))

		_, err = h.dispatcher.Dispatch(ctx, "onboard", "acme", core.Input{})
		assert.ErrorIs(t, err, scheduler.ErrWorkflowInactive)
	})
	t.Run("Should return not found for an unknown workflow", func(t *testing.T) {
		h := newSchedulerHarness(t)
		_, err := h.dispatcher.Dispatch(context.Background(), "missing", "acme", core.Input{})
		assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
	})
}

func TestEventBus_Publish(t *testing.T) {
	t.Run("Should start executions for matching event triggers only", func(t *testing.T) {
		h := newSchedulerHarness(t)
		ctx := context.Background()
		h.registerNoop(t, "noop")
		matching := singleStepDef("on_signup", workflow.Trigger{Type: workflow.TriggerEvent, Event: "user.created"})
		other := singleStepDef("on_churn", workflow.Trigger{Type: workflow.TriggerEvent, Event: "user.deleted"})
		apiOnly := singleStepDef("manual", workflow.Trigger{Type: workflow.TriggerAPICall})
		for _, def := range []*workflow.Config{matching, other, apiOnly} {
			_, err := h.defs.Register(ctx, def)
			require.NoError(t, err)
		}

		bus := scheduler.NewEventBus(h.dispatcher, h.defs)
		started, err := bus.Publish(ctx, "user.created", "acme", core.Input{"userId": "u-1"})
		require.NoError(t, err)
		require.Len(t, started, 1)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		require.NoError(t, h.manager.WaitFor(waitCtx, *started[0]))

		stored, err := h.repo.Get(ctx, *started[0])
		require.NoError(t, err)
		assert.Equal(t, "on_signup", stored.WorkflowName)
		assert.Equal(t, "u-1", stored.Input["userId"])
	})
	t.Run("Should return empty result when no trigger matches", func(t *testing.T) {
		h := newSchedulerHarness(t)
		bus := scheduler.NewEventBus(h.dispatcher, h.defs)
		started, err := bus.Publish(context.Background(), "nobody.cares", "acme", core.Input{})
		require.NoError(t, err)
		assert.Empty(t, started)
	})
	t.Run("Should require an event name", func(t *testing.T) {
		h := newSchedulerHarness(t)
		bus := scheduler.NewEventBus(h.dispatcher, h.defs)
		_, err := bus.Publish(context.Background(), "", "acme", core.Input{})
		assert.Error(t, err)
	})
}

func TestCronScheduler_Sync(t *testing.T) {
	t.Run("Should fire a scheduled workflow", func(t *testing.T) {
		h := newSchedulerHarness(t)
		ctx := context.Background()
		h.registerNoop(t, "noop")
		def := singleStepDef("nightly_report", workflow.Trigger{Type: workflow.TriggerSchedule, Schedule: "@every 1s"})
		_, err := h.defs.Register(ctx, def)
		require.NoError(t, err)

		sched := scheduler.NewCronScheduler(ctx, h.dispatcher, h.defs)
		require.NoError(t, sched.Sync(ctx))
		sched.Start()
		defer sched.Stop()

		assert.Eventually(t, func() bool {
			execs, err := h.repo.List(ctx, execution.Filter{WorkflowName: "nightly_report"})
			return err == nil && len(execs) > 0
		}, 3*time.Second, 50*time.Millisecond)
	})
	t.Run("Should pick up definitions registered after start via reconcile", func(t *testing.T) {
		h := newSchedulerHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.registerNoop(t, "noop")

		sched := scheduler.NewCronScheduler(ctx, h.dispatcher, h.defs)
		require.NoError(t, sched.Sync(ctx))
		sched.Start()
		defer sched.Stop()
		sched.StartReconcile(ctx, 50*time.Millisecond)

		// Registered directly in the store, with no explicit Sync call.
		def := singleStepDef("nightly_report", workflow.Trigger{Type: workflow.TriggerSchedule, Schedule: "@every 1s"})
		_, err := h.defs.Register(ctx, def)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			execs, err := h.repo.List(ctx, execution.Filter{WorkflowName: "nightly_report"})
			return err == nil && len(execs) > 0
		}, 4*time.Second, 50*time.Millisecond)
	})

	t.Run("Should drop entries for deactivated definitions", func(t *testing.T) {
		h := newSchedulerHarness(t)
		ctx := context.Background()
		h.registerNoop(t, "noop")
		def := singleStepDef("nightly_report", workflow.Trigger{Type: workflow.TriggerSchedule, Schedule: "@every 1s"})
		id, err := h.defs.Register(ctx, def)
		require.NoError(t, err)

		sched := scheduler.NewCronScheduler(ctx, h.dispatcher, h.defs)
		require.NoError(t, sched.Sync(ctx))
		require.NoError(t, h.defs.Deactivate(ctx, id))
		require.NoError(t, sched.Sync(ctx))
		sched.Start()
		defer sched.Stop()

		time.Sleep(1200 * time.Millisecond)
		execs, err := h.repo.List(ctx, execution.Filter{WorkflowName: "nightly_report"})
		require.NoError(t, err)
		assert.Empty(t, execs)
	})
}
