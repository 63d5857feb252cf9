package core

// -----------------------------------------------------------------------------
// Input / Output
// -----------------------------------------------------------------------------

// Input is the payload handed to a workflow execution or an activity handler.
type Input map[string]any

// Output is the result produced by an activity handler. Step outputs are merged
// into the execution context under the step name.
type Output map[string]any

func (i Input) AsMap() map[string]any {
	return map[string]any(i)
}

func (o Output) AsMap() map[string]any {
	return map[string]any(o)
}

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

type StatusType string

const (
	StatusPending  StatusType = "PENDING"
	StatusRunning  StatusType = "RUNNING"
	StatusPaused   StatusType = "PAUSED"
	StatusSuccess  StatusType = "SUCCESS"
	StatusFailed   StatusType = "FAILED"
	StatusCanceled StatusType = "CANCELED"
)

func (s StatusType) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed from s.
func (s StatusType) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Step record status
// -----------------------------------------------------------------------------

type RecordStatus string

const (
	RecordSucceeded RecordStatus = "succeeded"
	RecordFailed    RecordStatus = "failed"
	RecordSkipped   RecordStatus = "skipped"
)
