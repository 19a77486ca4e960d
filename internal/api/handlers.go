package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/services"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// Handlers adapts the prediction service to HTTP.
type Handlers struct {
	logger *slog.Logger
	svc    *services.PredictionService
}

func NewHandlers(logger *slog.Logger, svc *services.PredictionService) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, svc: svc}
}

// GeneratePrediction handles POST /api/v1/predictions.
func (h *Handlers) GeneratePrediction(c *gin.Context) {
	var req models.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.svc.GeneratePrediction(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GeneratePredictionBatch handles POST /api/v1/predictions/batch.
func (h *Handlers) GeneratePredictionBatch(c *gin.Context) {
	var reqs []models.PredictionRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	items, err := h.svc.GeneratePredictionBatch(c.Request.Context(), reqs)
	if err != nil {
		h.writeError(c, err)
		return
	}

	type batchEntry struct {
		Result *models.PredictionResult `json:"result,omitempty"`
		Error  string                   `json:"error,omitempty"`
	}
	out := make([]batchEntry, len(items))
	for i, item := range items {
		out[i].Result = item.Result
		if item.Err != nil {
			out[i].Error = item.Err.Error()
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// ForecastCashFlow handles GET /api/v1/organizations/:orgId/cashflow.
func (h *Handlers) ForecastCashFlow(c *gin.Context) {
	days, ok := queryInt(c, "days", 30)
	if !ok {
		return
	}

	result, err := h.svc.ForecastCashFlow(c.Request.Context(), c.Param("orgId"), c.Query("clientId"), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PredictRevenue handles GET /api/v1/organizations/:orgId/revenue.
func (h *Handlers) PredictRevenue(c *gin.Context) {
	months, ok := queryInt(c, "months", 6)
	if !ok {
		return
	}

	result, err := h.svc.PredictRevenue(c.Request.Context(), c.Param("orgId"), c.Query("clientId"), months)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DetectFraud handles POST /api/v1/fraud/scan.
func (h *Handlers) DetectFraud(c *gin.Context) {
	var req models.FraudScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	detections, err := h.svc.DetectFraud(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if detections == nil {
		detections = []models.AnomalyDetection{}
	}
	c.JSON(http.StatusOK, gin.H{"detections": detections, "count": len(detections)})
}

// ComputeRiskScore handles GET /api/v1/subjects/:subjectId/risk.
func (h *Handlers) ComputeRiskScore(c *gin.Context) {
	lookback, ok := queryInt(c, "lookbackDays", 0)
	if !ok {
		return
	}

	opts := models.RiskScoreOptions{
		OrganizationID: c.Query("organizationId"),
		LookbackDays:   lookback,
		IncludeMarket:  c.Query("includeMarket") == "true",
	}

	score, err := h.svc.ComputeRiskScore(c.Request.Context(), c.Param("subjectId"), opts)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "p95": h.svc.LatencyP95().String()})
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch utils.KindOf(err) {
	case utils.KindValidation:
		status = http.StatusBadRequest
	case utils.KindInsufficientData:
		status = http.StatusUnprocessableEntity
	case utils.KindExternalDependency:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Any("error", err))
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		c.JSON(status, gin.H{"error": appErr.Msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// queryInt parses an integer query parameter, writing a 400 on bad input.
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return n, true
}
