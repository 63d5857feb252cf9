package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsflow/engine/activity"
	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/infra/server"
	"github.com/opsai/opsflow/engine/infra/store"
	"github.com/opsai/opsflow/engine/service"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

type apiHarness struct {
	svc    *service.Service
	router http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	registry := activity.NewRegistry()
	require.NoError(t, registry.Register("database_update", func(_ context.Context, _, _ map[string]any) (core.Output, error) {
		return core.Output{"success": true}, nil
	}))
	svc := service.New(context.Background(), workflow.NewMemoryStore(), store.NewMemoryRepo(), registry, service.Options{
		Defaults: task.Defaults{
			Timeout:         5 * time.Second,
			MaxAttempts:     1,
			InitialInterval: time.Millisecond,
			MaxInterval:     10 * time.Millisecond,
		},
	})
	log := logger.NewLogger(logger.TestConfig())
	return &apiHarness{svc: svc, router: server.NewRouter(svc, log)}
}

func (h *apiHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

const defPayload = `{
	"name": "project_completion",
	"trigger": {"type": "api_call", "endpoint": "/projects/complete"},
	"steps": [
		{"name": "update_status", "type": "database_update", "config": {"id": "{{projectId}}"}}
	]
}`

func TestRouter_Workflows(t *testing.T) {
	t.Run("Should register and fetch a workflow", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, http.MethodPost, "/api/v1/workflows", defPayload)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var created struct {
			Data struct {
				WorkflowID string `json:"workflow_id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		require.NotEmpty(t, created.Data.WorkflowID)

		rec = h.do(t, http.MethodGet, "/api/v1/workflows/"+created.Data.WorkflowID, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "project_completion")
	})
	t.Run("Should reject an invalid definition", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, http.MethodPost, "/api/v1/workflows", `{"name": "broken", "trigger": {"type": "api_call"}, "steps": []}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("Should conflict on duplicate registration", func(t *testing.T) {
		h := newAPIHarness(t)
		require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/v1/workflows", defPayload).Code)
		rec := h.do(t, http.MethodPost, "/api/v1/workflows", defPayload)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
	t.Run("Should return 404 for an unknown workflow", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, http.MethodGet, "/api/v1/workflows/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_Executions(t *testing.T) {
	startExecution := func(t *testing.T, h *apiHarness) string {
		t.Helper()
		require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/v1/workflows", defPayload).Code)
		rec := h.do(t, http.MethodPost, "/api/v1/workflows/project_completion/executions", `{"projectId": "p-1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var resp struct {
			Data struct {
				ExecID string `json:"exec_id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Data.ExecID)
		return resp.Data.ExecID
	}

	t.Run("Should start an execution and expose its history", func(t *testing.T) {
		h := newAPIHarness(t)
		execID := startExecution(t, h)

		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.svc.WaitForExecution(waitCtx, core.ID(execID)))

		rec := h.do(t, http.MethodGet, "/api/v1/executions/"+execID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"SUCCESS"`)
		assert.Contains(t, rec.Body.String(), "update_status")
	})
	t.Run("Should list executions filtered by status", func(t *testing.T) {
		h := newAPIHarness(t)
		execID := startExecution(t, h)
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.svc.WaitForExecution(waitCtx, core.ID(execID)))

		rec := h.do(t, http.MethodGet, "/api/v1/executions?workflow=project_completion&status=success&limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), execID)

		rec = h.do(t, http.MethodGet, "/api/v1/executions?status=failed", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), execID)
	})
	t.Run("Should conflict when canceling a finished execution", func(t *testing.T) {
		h := newAPIHarness(t)
		execID := startExecution(t, h)
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.svc.WaitForExecution(waitCtx, core.ID(execID)))

		rec := h.do(t, http.MethodPost, "/api/v1/executions/"+execID+"/cancel", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
	t.Run("Should return 400 for a malformed execution ID", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, http.MethodGet, "/api/v1/executions/not-a-ksuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouter_Events(t *testing.T) {
	t.Run("Should start executions for event-triggered workflows", func(t *testing.T) {
		h := newAPIHarness(t)
		eventDef := `{
			"name": "on_signup",
			"trigger": {"type": "event", "event": "user.created"},
			"steps": [{"name": "update_status", "type": "database_update"}]
		}`
		require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/v1/workflows", eventDef).Code)

		rec := h.do(t, http.MethodPost, "/api/v1/events/user.created", `{"userId": "u-1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var resp struct {
			Data struct {
				ExecIDs []string `json:"exec_ids"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Data.ExecIDs, 1)
	})
}
