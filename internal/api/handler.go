// Package api serves classification and video analysis over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bdougie/toxiclens/internal/models"
	"github.com/bdougie/toxiclens/internal/storage"
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 100
)

// Service is the analysis surface the handlers call.
type Service interface {
	AnalyzeVideos(ctx context.Context, urls []string) (*models.AnalysisBatchResult, error)
	ClassifyTexts(ctx context.Context, texts []string, thresholds models.ThresholdVector) ([]models.ClassificationResult, error)
}

// HealthChecker reports whether the model is ready.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler handles the API endpoints
type Handler struct {
	service    Service
	health     HealthChecker
	searcher   storage.Searcher // nil when history search is unavailable
	thresholds models.ThresholdVector
	logger     *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(service Service, health HealthChecker, searcher storage.Searcher, thresholds models.ThresholdVector, logger *slog.Logger) *Handler {
	return &Handler{
		service:    service,
		health:     health,
		searcher:   searcher,
		thresholds: thresholds,
		logger:     logger,
	}
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Texts      []string  `json:"texts"`
	Thresholds []float32 `json:"thresholds,omitempty"`
}

// PredictResponse lists one prediction per input text, in input order.
type PredictResponse struct {
	Classes     []string                      `json:"classes"`
	Predictions []models.ClassificationResult `json:"predictions"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	URLs []string `json:"urls"`
}

// AnalyzeResponse carries one result per requested URL.
type AnalyzeResponse struct {
	Classes []string                     `json:"classes"`
	Videos  []models.VideoAnalysisResult `json:"videos"`
}

// SimilarRequest is the body of POST /similar.
type SimilarRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}

// SimilarResponse holds the query's own scores and the nearest stored texts.
type SimilarResponse struct {
	Query   models.ClassificationResult `json:"query"`
	Matches []storage.Match             `json:"matches"`
}

// Predict handles POST /predict
func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return
	}

	thresholds := h.thresholds
	if req.Thresholds != nil {
		if len(req.Thresholds) != models.NumClasses {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("thresholds must have %d values, got %d", models.NumClasses, len(req.Thresholds)))
			return
		}
		copy(thresholds[:], req.Thresholds)
		if err := thresholds.Validate(); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}

	results, err := h.service.ClassifyTexts(c.Request.Context(), req.Texts, thresholds)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Classes:     models.ClassNames[:],
		Predictions: results,
	})
}

// Analyze handles POST /analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return
	}

	batch, err := h.service.AnalyzeVideos(c.Request.Context(), req.URLs)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, AnalyzeResponse{
		Classes: models.ClassNames[:],
		Videos:  batch.Videos,
	})
}

// Similar handles POST /similar
func (h *Handler) Similar(c *gin.Context) {
	if h.searcher == nil {
		respondError(c, http.StatusNotImplemented, "NOT_CONFIGURED", "similarity search requires postgres storage")
		return
	}

	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		handleError(c, models.EmptyInputErr("api.Similar", "no text supplied"))
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	limit = min(limit, maxSimilarLimit)

	results, err := h.service.ClassifyTexts(c.Request.Context(), []string{req.Text}, h.thresholds)
	if err != nil {
		handleError(c, err)
		return
	}

	matches, err := h.searcher.SearchSimilar(c.Request.Context(), results[0].RawScores, limit)
	if err != nil {
		h.logger.Error("similarity search failed", slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "similarity search failed")
		return
	}
	if matches == nil {
		matches = []storage.Match{}
	}

	c.JSON(http.StatusOK, SimilarResponse{Query: results[0], Matches: matches})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready handles GET /ready
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.health != nil {
		if err := h.health.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
