package core

import "fmt"

// Error codes used across the engine. Persisted errors keep the code so
// history stays interpretable after the fact.
const (
	CodeDuplicateWorkflow      = "duplicate_workflow"
	CodeWorkflowNotFound       = "workflow_not_found"
	CodeWorkflowInactive       = "workflow_inactive"
	CodeUnknownActivity        = "unknown_activity"
	CodeTemplateResolution     = "template_resolution"
	CodeStepTimeout            = "step_timeout"
	CodeTransient              = "transient"
	CodePermanent              = "permanent"
	CodeInvalidStateTransition = "invalid_state_transition"
	CodeExecutionNotFound      = "execution_not_found"
)

// Error is the persisted error shape attached to failed executions and
// step records.
type Error struct {
	Message string         `json:"message,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func NewError(err error, code string, details map[string]any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: err.Error(),
		Code:    code,
		Details: details,
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}
