package uc

import (
	"context"
	"errors"
	"strings"

	"github.com/opsai/opsflow/engine/workflow"
)

// -----------------------------------------------------------------------------
// Get
// -----------------------------------------------------------------------------

type GetInput struct {
	TenantID   string
	WorkflowID string
}

type GetOutput struct {
	Config *workflow.Config
}

type Get struct {
	defs workflow.Store
}

func NewGet(defs workflow.Store) *Get {
	return &Get{defs: defs}
}

func (uc *Get) Execute(ctx context.Context, in *GetInput) (*GetOutput, error) {
	if in == nil || strings.TrimSpace(in.WorkflowID) == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("workflow ID is required"))
	}
	def, err := uc.defs.Get(ctx, strings.TrimSpace(in.WorkflowID), strings.TrimSpace(in.TenantID))
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, err
	}
	return &GetOutput{Config: def}, nil
}

// -----------------------------------------------------------------------------
// List
// -----------------------------------------------------------------------------

type ListInput struct {
	TenantID string
}

type ListOutput struct {
	Workflows []*workflow.Config
}

type List struct {
	defs workflow.Store
}

func NewList(defs workflow.Store) *List {
	return &List{defs: defs}
}

func (uc *List) Execute(ctx context.Context, in *ListInput) (*ListOutput, error) {
	tenant := ""
	if in != nil {
		tenant = strings.TrimSpace(in.TenantID)
	}
	defs, err := uc.defs.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return &ListOutput{Workflows: defs}, nil
}

// -----------------------------------------------------------------------------
// Deactivate
// -----------------------------------------------------------------------------

type DeactivateInput struct {
	WorkflowID string
}

type Deactivate struct {
	defs workflow.Store
}

func NewDeactivate(defs workflow.Store) *Deactivate {
	return &Deactivate{defs: defs}
}

func (uc *Deactivate) Execute(ctx context.Context, in *DeactivateInput) error {
	if in == nil || strings.TrimSpace(in.WorkflowID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("workflow ID is required"))
	}
	err := uc.defs.Deactivate(ctx, strings.TrimSpace(in.WorkflowID))
	if errors.Is(err, workflow.ErrWorkflowNotFound) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}
