package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/pkg/logger"
)

// ExecutionRepo is the PostgreSQL execution.Repository. Step-record appends
// and the owning execution's status/context update share one transaction so
// history can never disagree with current state after a crash mid-write.
type ExecutionRepo struct {
	db DBInterface
}

func NewExecutionRepo(db DBInterface) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

// -----------------------------------------------------------------------------
// Row types
// -----------------------------------------------------------------------------

type executionDB struct {
	ExecID           string     `db:"exec_id"`
	WorkflowID       string     `db:"workflow_id"`
	WorkflowName     string     `db:"workflow_name"`
	TenantID         string     `db:"tenant_id"`
	Status           string     `db:"status"`
	CurrentStepIndex int        `db:"current_step_index"`
	InputRaw         []byte     `db:"input"`
	ContextRaw       []byte     `db:"context"`
	ErrorRaw         []byte     `db:"error"`
	CreatedAt        time.Time  `db:"created_at"`
	StartedAt        *time.Time `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (edb *executionDB) toExecution() (*execution.Execution, error) {
	exec := &execution.Execution{
		ExecID:           core.ID(edb.ExecID),
		WorkflowID:       edb.WorkflowID,
		WorkflowName:     edb.WorkflowName,
		TenantID:         edb.TenantID,
		Status:           core.StatusType(edb.Status),
		CurrentStepIndex: edb.CurrentStepIndex,
		CreatedAt:        edb.CreatedAt,
		StartedAt:        edb.StartedAt,
		CompletedAt:      edb.CompletedAt,
		UpdatedAt:        edb.UpdatedAt,
	}
	if edb.InputRaw != nil {
		if err := json.Unmarshal(edb.InputRaw, &exec.Input); err != nil {
			return nil, fmt.Errorf("unmarshaling input: %w", err)
		}
	}
	if edb.ContextRaw != nil {
		if err := json.Unmarshal(edb.ContextRaw, &exec.Context); err != nil {
			return nil, fmt.Errorf("unmarshaling context: %w", err)
		}
	}
	if edb.ErrorRaw != nil {
		if err := json.Unmarshal(edb.ErrorRaw, &exec.Error); err != nil {
			return nil, fmt.Errorf("unmarshaling error: %w", err)
		}
	}
	return exec, nil
}

type recordDB struct {
	ID         string    `db:"id"`
	ExecID     string    `db:"exec_id"`
	StepName   string    `db:"step_name"`
	Attempt    int       `db:"attempt"`
	Status     string    `db:"status"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	OutputRaw  []byte    `db:"output"`
	ErrorRaw   []byte    `db:"error"`
}

func (rdb *recordDB) toRecord() (*task.Record, error) {
	rec := &task.Record{
		ID:         core.ID(rdb.ID),
		ExecID:     core.ID(rdb.ExecID),
		StepName:   rdb.StepName,
		Attempt:    rdb.Attempt,
		Status:     core.RecordStatus(rdb.Status),
		StartedAt:  rdb.StartedAt,
		FinishedAt: rdb.FinishedAt,
	}
	if rdb.OutputRaw != nil {
		if err := json.Unmarshal(rdb.OutputRaw, &rec.Output); err != nil {
			return nil, fmt.Errorf("unmarshaling output: %w", err)
		}
	}
	if rdb.ErrorRaw != nil {
		if err := json.Unmarshal(rdb.ErrorRaw, &rec.Error); err != nil {
			return nil, fmt.Errorf("unmarshaling error: %w", err)
		}
	}
	return rec, nil
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

const insertExecutionQuery = `
INSERT INTO workflow_executions
	(exec_id, workflow_id, workflow_name, tenant_id, status, current_step_index,
	 input, context, error, created_at, started_at, completed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

const updateExecutionQuery = `
UPDATE workflow_executions
SET status = $2, current_step_index = $3, context = $4, error = $5,
    started_at = $6, completed_at = $7, updated_at = $8
WHERE exec_id = $1
`

const insertRecordQuery = `
INSERT INTO step_records
	(id, exec_id, step_name, attempt, status, started_at, finished_at, output, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

func (r *ExecutionRepo) Create(ctx context.Context, exec *execution.Execution) error {
	input, execContext, execErr, err := marshalExecutionFields(exec)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, insertExecutionQuery,
		exec.ExecID.String(), exec.WorkflowID, exec.WorkflowName, exec.TenantID,
		exec.Status.String(), exec.CurrentStepIndex,
		input, execContext, execErr,
		exec.CreatedAt, exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepo) Update(ctx context.Context, exec *execution.Execution) error {
	_, execContext, execErr, err := marshalExecutionFields(exec)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, updateExecutionQuery,
		exec.ExecID.String(), exec.Status.String(), exec.CurrentStepIndex,
		execContext, execErr, exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", execution.ErrExecutionNotFound, exec.ExecID)
	}
	return nil
}

func (r *ExecutionRepo) UpdateWithRecords(
	ctx context.Context,
	exec *execution.Execution,
	records []*task.Record,
) error {
	_, execContext, execErr, err := marshalExecutionFields(exec)
	if err != nil {
		return err
	}
	return r.withTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateExecutionQuery,
			exec.ExecID.String(), exec.Status.String(), exec.CurrentStepIndex,
			execContext, execErr, exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("updating execution: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", execution.ErrExecutionNotFound, exec.ExecID)
		}
		for _, rec := range records {
			output, recErr, err := marshalRecordFields(rec)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertRecordQuery,
				rec.ID.String(), rec.ExecID.String(), rec.StepName, rec.Attempt,
				string(rec.Status), rec.StartedAt, rec.FinishedAt, output, recErr,
			); err != nil {
				return fmt.Errorf("inserting step record %s: %w", rec.StepName, err)
			}
		}
		return nil
	})
}

func (r *ExecutionRepo) withTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.FromContext(ctx).Error("error rolling back transaction", "error", rbErr)
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.FromContext(ctx).Error("error rolling back transaction", "error", rbErr)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(tx)
	return err
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

const getExecutionQuery = `
SELECT exec_id, workflow_id, workflow_name, tenant_id, status, current_step_index,
       input, context, error, created_at, started_at, completed_at, updated_at
FROM workflow_executions
WHERE exec_id = $1
`

const listRecordsQuery = `
SELECT id, exec_id, step_name, attempt, status, started_at, finished_at, output, error
FROM step_records
WHERE exec_id = $1
ORDER BY started_at, attempt
`

func (r *ExecutionRepo) Get(ctx context.Context, execID core.ID) (*execution.Execution, error) {
	var edb executionDB
	if err := pgxscan.Get(ctx, r.db, &edb, getExecutionQuery, execID.String()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", execution.ErrExecutionNotFound, execID)
		}
		return nil, fmt.Errorf("scanning execution: %w", err)
	}
	exec, err := edb.toExecution()
	if err != nil {
		return nil, err
	}

	var recordsDB []*recordDB
	if err := pgxscan.Select(ctx, r.db, &recordsDB, listRecordsQuery, execID.String()); err != nil {
		return nil, fmt.Errorf("scanning step records: %w", err)
	}
	for _, rdb := range recordsDB {
		rec, err := rdb.toRecord()
		if err != nil {
			return nil, err
		}
		exec.Steps = append(exec.Steps, rec)
	}
	return exec, nil
}

func (r *ExecutionRepo) List(ctx context.Context, filter execution.Filter) ([]*execution.Execution, error) {
	builder := squirrel.
		Select("exec_id", "workflow_id", "workflow_name", "tenant_id", "status",
			"current_step_index", "input", "context", "error",
			"created_at", "started_at", "completed_at", "updated_at").
		From("workflow_executions").
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)
	if filter.WorkflowName != "" {
		builder = builder.Where(squirrel.Eq{"workflow_name": filter.WorkflowName})
	}
	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": filter.Status.String()})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	var rows []*executionDB
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning executions: %w", err)
	}
	result := make([]*execution.Execution, 0, len(rows))
	for _, edb := range rows {
		exec, err := edb.toExecution()
		if err != nil {
			return nil, err
		}
		result = append(result, exec)
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Marshaling helpers
// -----------------------------------------------------------------------------

func marshalExecutionFields(exec *execution.Execution) (input, execContext, execErr []byte, err error) {
	if exec.Input != nil {
		if input, err = json.Marshal(exec.Input); err != nil {
			return nil, nil, nil, fmt.Errorf("marshaling input: %w", err)
		}
	}
	if exec.Context != nil {
		if execContext, err = json.Marshal(exec.Context); err != nil {
			return nil, nil, nil, fmt.Errorf("marshaling context: %w", err)
		}
	}
	if exec.Error != nil {
		if execErr, err = json.Marshal(exec.Error); err != nil {
			return nil, nil, nil, fmt.Errorf("marshaling error: %w", err)
		}
	}
	return input, execContext, execErr, nil
}

func marshalRecordFields(rec *task.Record) (output, recErr []byte, err error) {
	if rec.Output != nil {
		if output, err = json.Marshal(rec.Output); err != nil {
			return nil, nil, fmt.Errorf("marshaling output: %w", err)
		}
	}
	if rec.Error != nil {
		if recErr, err = json.Marshal(rec.Error); err != nil {
			return nil, nil, fmt.Errorf("marshaling error: %w", err)
		}
	}
	return output, recErr, nil
}
