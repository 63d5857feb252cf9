package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/opsai/opsflow/engine/activity"
	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
	"github.com/opsai/opsflow/pkg/tplengine"
)

// ErrStepTimeout marks an activity call that exceeded its step timeout. It is
// transient: the next attempt may complete in time.
var ErrStepTimeout = errors.New("step timed out")

// Defaults are applied when a step declares no timeout or retry policy.
type Defaults struct {
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultDefaults() Defaults {
	return Defaults{
		Timeout:         30 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Executor drives a single step: it resolves templated config against a
// snapshot of the execution context, invokes the matching activity bounded by
// the step timeout, and retries transient failures with jittered exponential
// backoff. Every attempt produces a Record.
type Executor struct {
	registry *activity.Registry
	tpl      *tplengine.TemplateEngine
	defaults Defaults
}

func NewExecutor(registry *activity.Registry, defaults Defaults) *Executor {
	if defaults.MaxAttempts < 1 {
		defaults.MaxAttempts = 1
	}
	return &Executor{
		registry: registry,
		tpl:      tplengine.NewEngine(),
		defaults: defaults,
	}
}

// Execute runs one step against the given execution context. The context map
// is snapshotted before resolution, so concurrent or later writes are never
// observed mid-step. Step failure is reported through Result.Error; the
// returned error is reserved for engine faults.
func (e *Executor) Execute(ctx context.Context, step *workflow.Step, execContext map[string]any) (*Result, error) {
	log := logger.FromContext(ctx)
	snapshot, err := core.DeepCopyMap(execContext)
	if err != nil {
		return nil, fmt.Errorf("snapshotting context for step %q: %w", step.Name, err)
	}

	result := &Result{}

	resolved, err := e.resolveConfig(step, snapshot)
	if err != nil {
		// The referenced data will never appear without upstream changes,
		// so template failures are permanent.
		result.Records = append(result.Records, FailedRecord(step.Name, 1, time.Now().UTC(), err, core.CodeTemplateResolution))
		result.Error = core.NewError(err, core.CodeTemplateResolution, map[string]any{"step": step.Name})
		return result, nil
	}

	handler, err := e.registry.Resolve(step.ActivityName())
	if err != nil {
		result.Records = append(result.Records, FailedRecord(step.Name, 1, time.Now().UTC(), err, core.CodeUnknownActivity))
		result.Error = core.NewError(err, core.CodeUnknownActivity, map[string]any{"step": step.Name})
		return result, nil
	}

	timeout := e.timeoutFor(step)
	attempt := 0
	var output core.Output

	retryErr := retry.Do(ctx, e.backoffFor(step), func(ctx context.Context) error {
		attempt++
		startedAt := time.Now().UTC()
		out, handlerErr := e.invoke(ctx, handler, resolved, snapshot, timeout)
		finishedAt := time.Now().UTC()

		if handlerErr != nil {
			code := errorCode(handlerErr)
			rec := newRecord(step.Name, attempt, startedAt)
			rec.FinishedAt = finishedAt
			rec.Status = core.RecordFailed
			rec.Error = core.NewError(handlerErr, code, nil)
			result.Records = append(result.Records, rec)
			log.Warn("step attempt failed",
				"step", step.Name, "attempt", attempt, "code", code, "error", handlerErr)
			if activity.IsTransient(handlerErr) {
				return retry.RetryableError(handlerErr)
			}
			return handlerErr
		}

		rec := newRecord(step.Name, attempt, startedAt)
		rec.FinishedAt = finishedAt
		rec.Status = core.RecordSucceeded
		rec.Output = out
		result.Records = append(result.Records, rec)
		output = out
		return nil
	})

	if retryErr != nil {
		result.Error = core.NewError(retryErr, errorCode(retryErr), map[string]any{
			"step":     step.Name,
			"attempts": attempt,
		})
		return result, nil
	}

	result.Output = output
	return result, nil
}

// invoke races the activity call against the step timeout. Activities have no
// cancellation contract, so on timeout the goroutine is left to finish on its
// own; its result is discarded.
func (e *Executor) invoke(
	ctx context.Context,
	handler activity.Handler,
	config map[string]any,
	execContext map[string]any,
	timeout time.Duration,
) (core.Output, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type invocation struct {
		output core.Output
		err    error
	}
	done := make(chan invocation, 1)
	go func() {
		out, err := handler(timeoutCtx, config, execContext)
		done <- invocation{output: out, err: err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, activity.Transient(fmt.Errorf("%w after %s", ErrStepTimeout, timeout))
	}
}

func (e *Executor) resolveConfig(step *workflow.Step, snapshot map[string]any) (map[string]any, error) {
	if step.Config == nil {
		return map[string]any{}, nil
	}
	resolved, err := e.tpl.ParseMap(step.Config, snapshot)
	if err != nil {
		return nil, fmt.Errorf("resolving config for step %q: %w", step.Name, err)
	}
	m, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolving config for step %q: unexpected %T", step.Name, resolved)
	}
	return m, nil
}

func (e *Executor) timeoutFor(step *workflow.Step) time.Duration {
	if d, err := step.ParsedTimeout(); err == nil && d > 0 {
		return d
	}
	return e.defaults.Timeout
}

func (e *Executor) backoffFor(step *workflow.Step) retry.Backoff {
	maxAttempts := e.defaults.MaxAttempts
	initial := e.defaults.InitialInterval
	capped := e.defaults.MaxInterval
	if step.Retry != nil {
		if step.Retry.MaxAttempts >= 1 {
			maxAttempts = step.Retry.MaxAttempts
		}
		if d, err := step.Retry.ParsedInitialInterval(); err == nil && d > 0 {
			initial = d
		}
		if d, err := step.Retry.ParsedMaxInterval(); err == nil && d > 0 {
			capped = d
		}
	}
	backoff := retry.NewExponential(initial)
	// Jitter avoids thundering-herd retries when many executions fail at once.
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithCappedDuration(capped, backoff)
	return retry.WithMaxRetries(uint64(maxAttempts-1), backoff)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrStepTimeout):
		return core.CodeStepTimeout
	case errors.Is(err, activity.ErrUnknownActivity):
		return core.CodeUnknownActivity
	case activity.IsTransient(err):
		return core.CodeTransient
	default:
		return core.CodePermanent
	}
}
