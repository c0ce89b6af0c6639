package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// Pipeline is the orchestrator surface the handlers need. Kept narrow so
// tests can drop in a fake.
type Pipeline interface {
	Analyze(ctx context.Context, requestID string, prompt *models.Prompt, deadlineOverride time.Duration) (*models.Report, error)
	GetStats() map[string]any
	HealthCheck(ctx context.Context) map[string]string
}

// ReportReader replays previously stored reports.
type ReportReader interface {
	GetReport(ctx context.Context, requestID string) (*models.Report, error)
}

type AnalysisHandler struct {
	pipeline Pipeline
	reports  ReportReader
	logger   *logger.Logger
}

func NewAnalysisHandler(pipeline Pipeline, reports ReportReader, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		pipeline: pipeline,
		reports:  reports,
		logger:   log,
	}
}

func (h *AnalysisHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/analyze", h.Analyze)
	router.GET("/reports/:id", h.GetReport)
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
}

// Analyze runs one analysis request synchronously and returns the report.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	startTime := time.Now()

	var request models.AnalyzeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.AnalyzeResponse{
			Status:  "failed",
			Message: "invalid request body: " + err.Error(),
		})
		return
	}

	requestID := models.GenerateRequestID()
	prompt := models.NewPrompt(request.Prompt, request.Tags)
	deadline := time.Duration(request.DeadlineMS) * time.Millisecond

	report, err := h.pipeline.Analyze(c.Request.Context(), requestID, prompt, deadline)
	if err != nil {
		status, message := classifyAnalysisError(err)
		h.logger.LogRequest(requestID, "analyze_failed", time.Since(startTime), err)
		c.JSON(status, models.AnalyzeResponse{
			RequestID:   requestID,
			Status:      "failed",
			Message:     message,
			TotalTimeMS: float64(time.Since(startTime).Milliseconds()),
		})
		return
	}

	c.JSON(http.StatusOK, models.AnalyzeResponse{
		RequestID:   requestID,
		Status:      "completed",
		Report:      report,
		TotalTimeMS: float64(time.Since(startTime).Milliseconds()),
	})
}

// classifyAnalysisError maps the two request-level failures onto HTTP codes.
// Anything else is an internal error.
func classifyAnalysisError(err error) (int, string) {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		switch pe.Code {
		case models.CodeNoApplicableAgent:
			return http.StatusUnprocessableEntity, pe.Message
		case models.CodeNoUsableOutput:
			return http.StatusBadGateway, pe.Message
		}
	}
	return http.StatusInternalServerError, "analysis failed"
}

// GetReport replays a previously generated report from the state store.
func (h *AnalysisHandler) GetReport(c *gin.Context) {
	requestID := c.Param("id")

	report, err := h.reports.GetReport(c.Request.Context(), requestID)
	if err != nil {
		var pe *models.PipelineError
		if errors.As(err, &pe) && pe.Code == "REPORT_NOT_FOUND" {
			c.JSON(http.StatusNotFound, gin.H{
				"error":      "report not found",
				"request_id": requestID,
			})
			return
		}
		h.logger.LogRequest(requestID, "get_report_failed", 0, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Health fans out to every collaborator; any unhealthy one degrades the
// overall status to 503.
func (h *AnalysisHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := h.pipeline.HealthCheck(ctx)

	status := http.StatusOK
	overall := "healthy"
	for _, state := range services {
		if state != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"services":  services,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AnalysisHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.GetStats())
}
