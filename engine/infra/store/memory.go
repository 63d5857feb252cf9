package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/task"
)

// MemoryRepo is an in-memory execution repository. It backs unit tests and
// single-process deployments that do not need durability; the mutex gives the
// same per-execution write serialization the Postgres repo gets from
// transactions.
type MemoryRepo struct {
	mu      sync.RWMutex
	execs   map[core.ID]*execution.Execution
	records map[core.ID][]*task.Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		execs:   make(map[core.ID]*execution.Execution),
		records: make(map[core.ID][]*task.Record),
	}
}

func (r *MemoryRepo) Create(_ context.Context, exec *execution.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.execs[exec.ExecID]; exists {
		return fmt.Errorf("execution %s already exists", exec.ExecID)
	}
	copied, err := copyExecution(exec)
	if err != nil {
		return err
	}
	r.execs[exec.ExecID] = copied
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, exec *execution.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(exec)
}

func (r *MemoryRepo) UpdateWithRecords(_ context.Context, exec *execution.Execution, records []*task.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Single critical section: the execution update and the appends are
	// observed together or not at all.
	if err := r.updateLocked(exec); err != nil {
		return err
	}
	for _, rec := range records {
		copied := *rec
		r.records[exec.ExecID] = append(r.records[exec.ExecID], &copied)
	}
	return nil
}

func (r *MemoryRepo) updateLocked(exec *execution.Execution) error {
	if _, exists := r.execs[exec.ExecID]; !exists {
		return fmt.Errorf("%w: %s", execution.ErrExecutionNotFound, exec.ExecID)
	}
	copied, err := copyExecution(exec)
	if err != nil {
		return err
	}
	r.execs[exec.ExecID] = copied
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, execID core.ID) (*execution.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.execs[execID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", execution.ErrExecutionNotFound, execID)
	}
	copied, err := copyExecution(exec)
	if err != nil {
		return nil, err
	}
	for _, rec := range r.records[execID] {
		recCopy := *rec
		copied.Steps = append(copied.Steps, &recCopy)
	}
	return copied, nil
}

func (r *MemoryRepo) List(_ context.Context, filter execution.Filter) ([]*execution.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*execution.Execution
	for _, exec := range r.execs {
		if filter.WorkflowName != "" && exec.WorkflowName != filter.WorkflowName {
			continue
		}
		if filter.Status != "" && exec.Status != filter.Status {
			continue
		}
		copied, err := copyExecution(exec)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func copyExecution(exec *execution.Execution) (*execution.Execution, error) {
	raw, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("copying execution: %w", err)
	}
	var copied execution.Execution
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("copying execution: %w", err)
	}
	copied.Steps = nil
	return &copied, nil
}
