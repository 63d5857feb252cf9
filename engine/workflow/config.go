package workflow

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// -----------------------------------------------------------------------------
// Trigger
// -----------------------------------------------------------------------------

type TriggerType string

const (
	TriggerAPICall  TriggerType = "api_call"
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
)

// Trigger describes what spawns new executions of a definition. Exactly one
// of the type-specific fields is meaningful for a given Type.
type Trigger struct {
	Type     TriggerType `json:"type"               yaml:"type"`
	Endpoint string      `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method   string      `json:"method,omitempty"   yaml:"method,omitempty"`
	Schedule string      `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Event    string      `json:"event,omitempty"    yaml:"event,omitempty"`
}

// -----------------------------------------------------------------------------
// Step
// -----------------------------------------------------------------------------

type StepType string

const (
	StepDatabaseUpdate StepType = "database_update"
	StepAPICall        StepType = "api_call"
	StepNotification   StepType = "notification"
	StepCustom         StepType = "custom"
)

// RetryPolicy bounds retries of transient step failures. Interval fields use
// human-readable durations ("1s", "500ms", "1m30s").
type RetryPolicy struct {
	MaxAttempts     int    `json:"max_attempts"               yaml:"max_attempts"`
	InitialInterval string `json:"initial_interval,omitempty" yaml:"initial_interval,omitempty"`
	MaxInterval     string `json:"max_interval,omitempty"     yaml:"max_interval,omitempty"`
}

func (p *RetryPolicy) ParsedInitialInterval() (time.Duration, error) {
	if p.InitialInterval == "" {
		return 0, nil
	}
	return str2duration.ParseDuration(p.InitialInterval)
}

func (p *RetryPolicy) ParsedMaxInterval() (time.Duration, error) {
	if p.MaxInterval == "" {
		return 0, nil
	}
	return str2duration.ParseDuration(p.MaxInterval)
}

// Step is one unit of work within a definition. Config values may contain
// {{ expr }} templates resolved against the execution context at step start.
type Step struct {
	Name    string         `json:"name"              yaml:"name"`
	Type    StepType       `json:"type"              yaml:"type"`
	Config  map[string]any `json:"config,omitempty"  yaml:"config,omitempty"`
	Retry   *RetryPolicy   `json:"retry,omitempty"   yaml:"retry,omitempty"`
	Timeout string         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ActivityName returns the registry key this step dispatches to: an explicit
// config.function wins, otherwise the step type is the activity name.
func (s *Step) ActivityName() string {
	if fn, ok := s.Config["function"].(string); ok && fn != "" {
		return fn
	}
	return string(s.Type)
}

func (s *Step) ParsedTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return str2duration.ParseDuration(s.Timeout)
}

// -----------------------------------------------------------------------------
// Config (workflow definition)
// -----------------------------------------------------------------------------

// Config is an immutable workflow definition: a trigger plus an ordered list
// of steps. Once registered it is never mutated; superseding a definition
// means deactivating it and registering a new one.
type Config struct {
	ID          string  `json:"id"                    yaml:"id"`
	TenantID    string  `json:"tenant_id,omitempty"   yaml:"tenant_id,omitempty"`
	Name        string  `json:"name"                  yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Active      bool    `json:"active"                yaml:"active"`
	Trigger     Trigger `json:"trigger"               yaml:"trigger"`
	Steps       []Step  `json:"steps"                 yaml:"steps"`
}

func (w *Config) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q must declare at least one step", w.Name)
	}
	switch w.Trigger.Type {
	case TriggerAPICall:
	case TriggerSchedule:
		if w.Trigger.Schedule == "" {
			return fmt.Errorf("workflow %q: schedule trigger requires a cron expression", w.Name)
		}
		if _, err := cron.ParseStandard(w.Trigger.Schedule); err != nil {
			return fmt.Errorf("workflow %q: invalid cron expression %q: %w", w.Name, w.Trigger.Schedule, err)
		}
	case TriggerEvent:
		if w.Trigger.Event == "" {
			return fmt.Errorf("workflow %q: event trigger requires an event name", w.Name)
		}
	default:
		return fmt.Errorf("workflow %q: unknown trigger type %q", w.Name, w.Trigger.Type)
	}
	seen := make(map[string]struct{}, len(w.Steps))
	for i := range w.Steps {
		step := &w.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("workflow %q: step %d has no name", w.Name, i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("workflow %q: duplicate step name %q", w.Name, step.Name)
		}
		seen[step.Name] = struct{}{}
		switch step.Type {
		case StepDatabaseUpdate, StepAPICall, StepNotification, StepCustom:
		default:
			return fmt.Errorf("workflow %q: step %q has unknown type %q", w.Name, step.Name, step.Type)
		}
		if _, err := step.ParsedTimeout(); err != nil {
			return fmt.Errorf("workflow %q: step %q: invalid timeout: %w", w.Name, step.Name, err)
		}
		if step.Retry != nil {
			if step.Retry.MaxAttempts < 1 {
				return fmt.Errorf("workflow %q: step %q: retry max_attempts must be >= 1", w.Name, step.Name)
			}
			if _, err := step.Retry.ParsedInitialInterval(); err != nil {
				return fmt.Errorf("workflow %q: step %q: invalid initial_interval: %w", w.Name, step.Name, err)
			}
			if _, err := step.Retry.ParsedMaxInterval(); err != nil {
				return fmt.Errorf("workflow %q: step %q: invalid max_interval: %w", w.Name, step.Name, err)
			}
		}
	}
	return nil
}
