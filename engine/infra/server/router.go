package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opsai/opsflow/engine/core"
	"github.com/opsai/opsflow/engine/service"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

const tenantHeader = "X-Tenant-ID"

// NewRouter builds the HTTP API around the engine facade.
func NewRouter(svc *service.Service, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), loggerMiddleware(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/workflows", registerWorkflow(svc))
		api.GET("/workflows", listWorkflows(svc))
		api.GET("/workflows/:workflow_id", getWorkflow(svc))
		api.DELETE("/workflows/:workflow_id", deactivateWorkflow(svc))

		api.POST("/workflows/:workflow_id/executions", executeWorkflow(svc))
		api.GET("/executions", listExecutions(svc))
		api.GET("/executions/:exec_id", getExecution(svc))
		api.POST("/executions/:exec_id/pause", pauseExecution(svc))
		api.POST("/executions/:exec_id/resume", resumeExecution(svc))
		api.POST("/executions/:exec_id/cancel", cancelExecution(svc))

		api.POST("/events/:event", publishEvent(svc))
	}
	return router
}

// loggerMiddleware injects the logger into the request context so handlers and
// the engine below them share one structured logger.
func loggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.ContextWithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tenantFrom(c *gin.Context) string {
	return c.GetHeader(tenantHeader)
}

// -----------------------------------------------------------------------------
// Workflow definition handlers
// -----------------------------------------------------------------------------

func registerWorkflow(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var def workflow.Config
		if err := c.ShouldBindJSON(&def); err != nil {
			c.JSON(http.StatusBadRequest, Response{Error: "invalid workflow payload: " + err.Error()})
			return
		}
		id, err := svc.RegisterWorkflow(c.Request.Context(), tenantFrom(c), &def)
		if err != nil {
			respondError(c, err)
			return
		}
		respondCreated(c, "workflow registered", gin.H{"workflow_id": id})
	}
}

func listWorkflows(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		defs, err := svc.ListWorkflows(c.Request.Context(), tenantFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "workflows retrieved", gin.H{"workflows": defs})
	}
}

func getWorkflow(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		def, err := svc.GetWorkflow(c.Request.Context(), tenantFrom(c), c.Param("workflow_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "workflow retrieved", def)
	}
}

func deactivateWorkflow(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeactivateWorkflow(c.Request.Context(), c.Param("workflow_id")); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "workflow deactivated", nil)
	}
}

// -----------------------------------------------------------------------------
// Execution handlers
// -----------------------------------------------------------------------------

func executeWorkflow(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input core.Input
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, Response{Error: "invalid input payload: " + err.Error()})
				return
			}
		}
		// The path segment is the workflow name; executions always target the
		// active definition.
		exec, err := svc.ExecuteWorkflow(c.Request.Context(), tenantFrom(c), c.Param("workflow_id"), input)
		if err != nil {
			respondError(c, err)
			return
		}
		respondAccepted(c, "execution started", gin.H{
			"exec_id": exec.ExecID,
			"status":  exec.Status,
		})
	}
}

func listExecutions(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, Response{Error: "invalid limit parameter"})
				return
			}
			limit = parsed
		}
		execs, err := svc.ListExecutions(c.Request.Context(), c.Query("workflow"), c.Query("status"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "executions retrieved", gin.H{"executions": execs})
	}
}

func getExecution(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		exec, err := svc.GetExecution(c.Request.Context(), c.Param("exec_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "execution retrieved", exec)
	}
}

func pauseExecution(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.PauseExecution(c.Request.Context(), c.Param("exec_id")); err != nil {
			respondError(c, err)
			return
		}
		respondAccepted(c, "pause requested", nil)
	}
}

func resumeExecution(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.ResumeExecution(c.Request.Context(), c.Param("exec_id")); err != nil {
			respondError(c, err)
			return
		}
		respondAccepted(c, "execution resumed", nil)
	}
}

func cancelExecution(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.CancelExecution(c.Request.Context(), c.Param("exec_id")); err != nil {
			respondError(c, err)
			return
		}
		respondAccepted(c, "cancel requested", nil)
	}
}

func publishEvent(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload core.Input
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&payload); err != nil {
				c.JSON(http.StatusBadRequest, Response{Error: "invalid event payload: " + err.Error()})
				return
			}
		}
		ids, err := svc.PublishEvent(c.Request.Context(), tenantFrom(c), c.Param("event"), payload)
		if err != nil {
			respondError(c, err)
			return
		}
		respondAccepted(c, "event published", gin.H{"exec_ids": ids})
	}
}
