package uc

import (
	"context"
	"errors"
	"strings"

	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

// -----------------------------------------------------------------------------
// Register
// -----------------------------------------------------------------------------

type RegisterInput struct {
	TenantID string
	Config   *workflow.Config
}

type RegisterOutput struct {
	WorkflowID string
}

type Register struct {
	defs workflow.Store
}

func NewRegister(defs workflow.Store) *Register {
	return &Register{defs: defs}
}

func (uc *Register) Execute(ctx context.Context, in *RegisterInput) (*RegisterOutput, error) {
	if in == nil || in.Config == nil {
		return nil, errors.Join(ErrInvalidInput, errors.New("workflow definition is required"))
	}
	def := *in.Config
	if tenant := strings.TrimSpace(in.TenantID); tenant != "" {
		def.TenantID = tenant
	}
	def.Active = true
	if err := def.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidInput, err)
	}
	id, err := uc.defs.Register(ctx, &def)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("workflow registered",
		"workflow_id", id, "name", def.Name, "steps", len(def.Steps))
	return &RegisterOutput{WorkflowID: id}, nil
}
