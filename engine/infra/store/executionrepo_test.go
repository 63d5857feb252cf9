package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/infra/store"
	"github.com/opsai/opsflow/engine/task"
)

func testExecution() *execution.Execution {
	now := time.Now().UTC()
	return &execution.Execution{
		ExecID:           core.NewID(),
		WorkflowID:       "acme-project_completion",
		WorkflowName:     "project_completion",
		TenantID:         "acme",
		Status:           core.StatusPending,
		CurrentStepIndex: 0,
		Input:            core.Input{"projectId": "p-1"},
		Context:          map[string]any{"projectId": "p-1"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestExecutionRepo_Create(t *testing.T) {
	t.Run("Should insert execution row", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		exec := testExecution()
		mockPool.ExpectExec("INSERT INTO workflow_executions").
			WithArgs(
				exec.ExecID.String(), exec.WorkflowID, exec.WorkflowName, exec.TenantID,
				exec.Status.String(), exec.CurrentStepIndex,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				exec.CreatedAt, exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		err = repo.Create(context.Background(), exec)
		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestExecutionRepo_Update(t *testing.T) {
	t.Run("Should update execution row", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		exec := testExecution()
		exec.Status = core.StatusRunning
		mockPool.ExpectExec("UPDATE workflow_executions").
			WithArgs(
				exec.ExecID.String(), exec.Status.String(), exec.CurrentStepIndex,
				pgxmock.AnyArg(), pgxmock.AnyArg(),
				exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		err = repo.Update(context.Background(), exec)
		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should return not found when no rows affected", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		exec := testExecution()
		mockPool.ExpectExec("UPDATE workflow_executions").
			WithArgs(
				exec.ExecID.String(), exec.Status.String(), exec.CurrentStepIndex,
				pgxmock.AnyArg(), pgxmock.AnyArg(),
				exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err = repo.Update(context.Background(), exec)
		assert.ErrorIs(t, err, execution.ErrExecutionNotFound)
	})
}

func TestExecutionRepo_UpdateWithRecords(t *testing.T) {
	t.Run("Should update execution and insert records in one transaction", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		exec := testExecution()
		exec.Status = core.StatusRunning
		now := time.Now().UTC()
		rec := &task.Record{
			ID:         core.NewID(),
			ExecID:     exec.ExecID,
			StepName:   "update_status",
			Attempt:    1,
			Status:     core.RecordSucceeded,
			StartedAt:  now,
			FinishedAt: now,
			Output:     core.Output{"success": true},
		}
		mockPool.ExpectBegin()
		mockPool.ExpectExec("UPDATE workflow_executions").
			WithArgs(
				exec.ExecID.String(), exec.Status.String(), exec.CurrentStepIndex,
				pgxmock.AnyArg(), pgxmock.AnyArg(),
				exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec("INSERT INTO step_records").
			WithArgs(
				rec.ID.String(), rec.ExecID.String(), rec.StepName, rec.Attempt,
				string(rec.Status), rec.StartedAt, rec.FinishedAt,
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		err = repo.UpdateWithRecords(context.Background(), exec, []*task.Record{rec})
		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should roll back when a record insert fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		exec := testExecution()
		now := time.Now().UTC()
		rec := &task.Record{
			ID:         core.NewID(),
			ExecID:     exec.ExecID,
			StepName:   "update_status",
			Attempt:    1,
			Status:     core.RecordFailed,
			StartedAt:  now,
			FinishedAt: now,
		}
		mockPool.ExpectBegin()
		mockPool.ExpectExec("UPDATE workflow_executions").
			WithArgs(
				exec.ExecID.String(), exec.Status.String(), exec.CurrentStepIndex,
				pgxmock.AnyArg(), pgxmock.AnyArg(),
				exec.StartedAt, exec.CompletedAt, exec.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec("INSERT INTO step_records").
			WithArgs(
				rec.ID.String(), rec.ExecID.String(), rec.StepName, rec.Attempt,
				string(rec.Status), rec.StartedAt, rec.FinishedAt,
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnError(assert.AnError)
		mockPool.ExpectRollback()
		err = repo.UpdateWithRecords(context.Background(), exec, []*task.Record{rec})
		assert.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestExecutionRepo_Get(t *testing.T) {
	t.Run("Should return execution with step history", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		execID := core.NewID()
		now := time.Now().UTC()
		execRows := mockPool.NewRows([]string{
			"exec_id", "workflow_id", "workflow_name", "tenant_id", "status",
			"current_step_index", "input", "context", "error",
			"created_at", "started_at", "completed_at", "updated_at",
		}).AddRow(
			execID.String(), "acme-project_completion", "project_completion", "acme",
			core.StatusSuccess.String(), 3,
			[]byte(`{"projectId":"p-1"}`), []byte(`{"projectId":"p-1"}`), nil,
			now, &now, &now, now,
		)
		mockPool.ExpectQuery("SELECT (.+) FROM workflow_executions").
			WithArgs(execID.String()).
			WillReturnRows(execRows)
		recordRows := mockPool.NewRows([]string{
			"id", "exec_id", "step_name", "attempt", "status",
			"started_at", "finished_at", "output", "error",
		}).AddRow(
			core.NewID().String(), execID.String(), "update_status", 1,
			string(core.RecordSucceeded), now, now,
			[]byte(`{"success":true}`), nil,
		).AddRow(
			core.NewID().String(), execID.String(), "calculate_metrics", 1,
			string(core.RecordSucceeded), now, now,
			[]byte(`{"total":42}`), nil,
		)
		mockPool.ExpectQuery("SELECT (.+) FROM step_records").
			WithArgs(execID.String()).
			WillReturnRows(recordRows)
		exec, err := repo.Get(context.Background(), execID)
		require.NoError(t, err)
		assert.Equal(t, execID, exec.ExecID)
		assert.Equal(t, core.StatusSuccess, exec.Status)
		assert.Equal(t, "p-1", exec.Input["projectId"])
		require.Len(t, exec.Steps, 2)
		assert.Equal(t, "update_status", exec.Steps[0].StepName)
		assert.Equal(t, true, exec.Steps[0].Output["success"])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should return not found for unknown execution", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		execID := core.NewID()
		mockPool.ExpectQuery("SELECT (.+) FROM workflow_executions").
			WithArgs(execID.String()).
			WillReturnRows(mockPool.NewRows([]string{"exec_id"}))
		_, err = repo.Get(context.Background(), execID)
		assert.ErrorIs(t, err, execution.ErrExecutionNotFound)
	})
}

func TestExecutionRepo_List(t *testing.T) {
	t.Run("Should filter by workflow name and status", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := store.NewExecutionRepo(mockPool)
		now := time.Now().UTC()
		rows := mockPool.NewRows([]string{
			"exec_id", "workflow_id", "workflow_name", "tenant_id", "status",
			"current_step_index", "input", "context", "error",
			"created_at", "started_at", "completed_at", "updated_at",
		}).AddRow(
			core.NewID().String(), "acme-project_completion", "project_completion", "acme",
			core.StatusFailed.String(), 1,
			nil, nil, []byte(`{"message":"boom","code":"permanent"}`),
			now, &now, &now, now,
		)
		mockPool.ExpectQuery("SELECT (.+) FROM workflow_executions WHERE workflow_name = \\$1 AND status = \\$2").
			WithArgs("project_completion", core.StatusFailed.String()).
			WillReturnRows(rows)
		result, err := repo.List(context.Background(), execution.Filter{
			WorkflowName: "project_completion",
			Status:       core.StatusFailed,
			Limit:        10,
		})
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, core.StatusFailed, result[0].Status)
		assert.Equal(t, "boom", result[0].Error.Message)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
