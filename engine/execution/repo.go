package execution

import (
	"context"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/task"
)

// Filter narrows execution listings.
type Filter struct {
	WorkflowName string
	Status       core.StatusType
	Limit        int
}

// Repository is the durable log of executions and their step history.
// Implementations must serialize writes per execution ID and make
// UpdateWithRecords atomic: the status/context update and the record appends
// either both land or neither does.
type Repository interface {
	Create(ctx context.Context, exec *Execution) error
	Update(ctx context.Context, exec *Execution) error
	UpdateWithRecords(ctx context.Context, exec *Execution, records []*task.Record) error
	Get(ctx context.Context, execID core.ID) (*Execution, error)
	List(ctx context.Context, filter Filter) ([]*Execution, error)
}
