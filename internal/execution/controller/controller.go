// Package controller exposes the grading engine over HTTP.
package controller

import (
	"context"
	"net/http"

	"codegrade/internal/execution/model"
	"codegrade/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Service is the application surface the controller needs.
type Service interface {
	Execute(ctx context.Context, req model.ExecutionRequest) (model.ExecutionSummary, error)
	GetStatus(ctx context.Context, submissionID string) (*model.ExecutionStatusRecord, error)
	Languages() []string
}

// ExecutionController handles the execution API routes.
type ExecutionController struct {
	svc Service
}

// NewExecutionController creates the controller.
func NewExecutionController(svc Service) *ExecutionController {
	return &ExecutionController{svc: svc}
}

// RegisterRoutes mounts the API under /api/v1.
func (c *ExecutionController) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/v1")
	api.POST("/executions", c.Execute)
	api.GET("/executions/:id", c.GetStatus)
	api.GET("/languages", c.ListLanguages)
}

// Execute grades a submission synchronously and returns the summary.
func (c *ExecutionController) Execute(ctx *gin.Context) {
	var req model.ExecutionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.BadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	summary, err := c.svc.Execute(ctx.Request.Context(), req)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, summary)
}

// GetStatus returns the persisted state of a submission.
func (c *ExecutionController) GetStatus(ctx *gin.Context) {
	id := ctx.Param("id")
	if id == "" {
		response.BadRequest(ctx, "submission id is required")
		return
	}
	record, err := c.svc.GetStatus(ctx.Request.Context(), id)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, record)
}

// ListLanguages returns the supported language IDs.
func (c *ExecutionController) ListLanguages(ctx *gin.Context) {
	response.Success(ctx, gin.H{"languages": c.svc.Languages()})
}

// Health is a liveness probe handler.
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
