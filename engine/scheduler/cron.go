package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

// CronScheduler fires schedule-triggered workflows on their cron expressions.
// Sync reconciles the registered entries against the definition store, so
// deactivated definitions stop firing on the next reconcile.
type CronScheduler struct {
	dispatcher *Dispatcher
	defs       workflow.Store
	cron       *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronScheduler(ctx context.Context, dispatcher *Dispatcher, defs workflow.Store) *CronScheduler {
	log := logger.FromContext(ctx)
	c := cron.New(cron.WithChain(
		// A slow execution must not stack a second firing behind it.
		cron.SkipIfStillRunning(cronLogger{log: log}),
		cron.Recover(cronLogger{log: log}),
	))
	return &CronScheduler{
		dispatcher: dispatcher,
		defs:       defs,
		cron:       c,
		entries:    make(map[string]cron.EntryID),
	}
}

// Sync registers cron entries for every active schedule-triggered definition
// and removes entries whose definition is gone or inactive.
func (s *CronScheduler) Sync(ctx context.Context) error {
	defs, err := s.defs.List(ctx, "")
	if err != nil {
		return fmt.Errorf("listing definitions: %w", err)
	}
	log := logger.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]*workflow.Config)
	for _, def := range defs {
		if def.Active && def.Trigger.Type == workflow.TriggerSchedule {
			wanted[def.ID] = def
		}
	}

	for id, entryID := range s.entries {
		if _, ok := wanted[id]; !ok {
			s.cron.Remove(entryID)
			delete(s.entries, id)
			log.Info("schedule removed", "workflow_id", id)
		}
	}

	for id, def := range wanted {
		if _, ok := s.entries[id]; ok {
			continue
		}
		def := def
		entryID, err := s.cron.AddFunc(def.Trigger.Schedule, func() {
			runCtx := logger.ContextWithLogger(context.Background(), log)
			if _, err := s.dispatcher.Dispatch(runCtx, def.Name, def.TenantID, core.Input{}); err != nil {
				log.Error("scheduled dispatch failed", "workflow", def.Name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling workflow %q: %w", def.Name, err)
		}
		s.entries[id] = entryID
		log.Info("schedule registered", "workflow", def.Name, "cron", def.Trigger.Schedule)
	}
	return nil
}

func (s *CronScheduler) Start() {
	s.cron.Start()
}

// StartReconcile re-runs Sync on a fixed interval until ctx is done, so
// definitions registered through paths without an explicit Sync (file loads,
// direct store writes) still start firing.
func (s *CronScheduler) StartReconcile(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := logger.FromContext(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sync(ctx); err != nil {
					log.Error("schedule reconcile failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the scheduler and waits for in-flight firings to return.
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts the structured logger to the cron logging interface.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
