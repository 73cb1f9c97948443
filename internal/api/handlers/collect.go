package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/services"
)

// CollectRequest triggers a synchronous collection sweep for a company.
type CollectRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	MaxResults  int    `json:"max_results"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Force       bool   `json:"force"`
}

// CollectHandler exposes on-demand collection and optional model analysis.
type CollectHandler struct {
	collector  *services.Collector
	analysis   *services.AnalysisService
	maxResults int
	logger     *logrus.Logger
}

func NewCollectHandler(collector *services.Collector, analysis *services.AnalysisService, maxResults int, logger *logrus.Logger) *CollectHandler {
	return &CollectHandler{
		collector:  collector,
		analysis:   analysis,
		maxResults: maxResults,
		logger:     logger,
	}
}

// HandleCollect processes POST /api/v1/collect.
func (h *CollectHandler) HandleCollect(c *gin.Context) {
	var req CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collect request: " + err.Error()})
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date: " + err.Error()})
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date: " + err.Error()})
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = h.maxResults
	}

	result, err := h.collector.Collect(c.Request.Context(), req.CompanyName, maxResults, start, end, req.Force)
	if err != nil {
		h.logger.WithField("company", req.CompanyName).WithError(err).Error("Collection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "collection failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleAnalyze processes POST /api/v1/analyze. It collects (or reuses
// cached) news and asks the model for a verdict.
func (h *CollectHandler) HandleAnalyze(c *gin.Context) {
	var req CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analyze request: " + err.Error()})
		return
	}

	if !h.analysis.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis is not configured"})
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = h.maxResults
	}

	result, err := h.collector.Collect(c.Request.Context(), req.CompanyName, maxResults, nil, nil, req.Force)
	if err != nil {
		h.logger.WithField("company", req.CompanyName).WithError(err).Error("Collection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "collection failed"})
		return
	}
	if len(result.Items) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no news found for company"})
		return
	}

	analysis, err := h.analysis.Analyze(c.Request.Context(), req.CompanyName, result.Items)
	if err != nil {
		h.logger.WithField("company", req.CompanyName).WithError(err).Error("Analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis": analysis,
		"items":    len(result.Items),
		"sources":  result.Sources,
	})
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}
