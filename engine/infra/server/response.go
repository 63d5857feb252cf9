package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/scheduler"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/engine/workflow/uc"
	"github.com/opsai/opsflow/pkg/logger"
)

// Response is the envelope for all API responses.
type Response struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Message: message, Data: data})
}

func respondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Response{Message: message, Data: data})
}

func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, Response{Message: message, Data: data})
}

// respondError maps domain errors to HTTP statuses. Unknown errors surface as
// 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, uc.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, uc.ErrNotFound),
		errors.Is(err, workflow.ErrWorkflowNotFound),
		errors.Is(err, execution.ErrExecutionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrDuplicateWorkflow),
		errors.Is(err, scheduler.ErrWorkflowInactive),
		errors.Is(err, execution.ErrInvalidStateTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			"path", c.FullPath(), "error", err)
		c.JSON(status, Response{Error: "internal server error"})
		return
	}
	c.JSON(status, Response{Error: err.Error()})
}
