package scheduler

import (
	"context"
	"fmt"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

// EventBus fans published events out to event-triggered workflow definitions.
// Every active definition whose trigger event matches the published name gets
// its own execution seeded with the event payload.
type EventBus struct {
	dispatcher *Dispatcher
	defs       workflow.Store
}

func NewEventBus(dispatcher *Dispatcher, defs workflow.Store) *EventBus {
	return &EventBus{dispatcher: dispatcher, defs: defs}
}

// Publish dispatches one execution per matching definition and returns them.
// A dispatch failure for one definition does not block the others.
func (b *EventBus) Publish(ctx context.Context, event, tenantID string, payload core.Input) ([]*core.ID, error) {
	if event == "" {
		return nil, fmt.Errorf("event name is required")
	}
	defs, err := b.defs.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing definitions: %w", err)
	}
	log := logger.FromContext(ctx)

	var started []*core.ID
	var lastErr error
	for _, def := range defs {
		if !def.Active || def.Trigger.Type != workflow.TriggerEvent || def.Trigger.Event != event {
			continue
		}
		exec, err := b.dispatcher.DispatchDefinition(ctx, def, payload)
		if err != nil {
			log.Error("event dispatch failed", "event", event, "workflow", def.Name, "error", err)
			lastErr = err
			continue
		}
		started = append(started, &exec.ExecID)
	}
	if started == nil && lastErr != nil {
		return nil, lastErr
	}
	return started, nil
}
