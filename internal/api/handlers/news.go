package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/database"
	"github.com/v0idhrt/radar/internal/models"
)

// NewsReader is the read-side persistence surface for the news endpoints.
type NewsReader interface {
	GetNewsByCompany(ctx context.Context, companyName string, start, end *time.Time, limit int) ([]models.NewsItem, error)
	GetCompanyStats(ctx context.Context, companyName string) (*database.CompanyNewsStats, error)
}

// NewsHandler serves stored news back out of the database.
type NewsHandler struct {
	store  NewsReader
	logger *logrus.Logger
}

// NewsResponse wraps a page of stored articles.
type NewsResponse struct {
	CompanyName string            `json:"company_name"`
	Total       int               `json:"total"`
	Items       []models.NewsItem `json:"items"`
}

func NewNewsHandler(store NewsReader, logger *logrus.Logger) *NewsHandler {
	return &NewsHandler{store: store, logger: logger}
}

// GetNews processes GET /api/v1/news/:company. Optional query parameters:
// limit (default 100) and days (bound the window to the trailing N days).
func (h *NewsHandler) GetNews(c *gin.Context) {
	company := c.Param("company")

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	var start *time.Time
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		start = &cutoff
	}

	items, err := h.store.GetNewsByCompany(c.Request.Context(), company, start, nil, limit)
	if err != nil {
		h.logger.WithField("company", company).WithError(err).Error("Failed to load news")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load news"})
		return
	}

	c.JSON(http.StatusOK, NewsResponse{
		CompanyName: company,
		Total:       len(items),
		Items:       items,
	})
}

// GetCompanyStats processes GET /api/v1/stats/:company.
func (h *NewsHandler) GetCompanyStats(c *gin.Context) {
	company := c.Param("company")

	stats, err := h.store.GetCompanyStats(c.Request.Context(), company)
	if err != nil {
		h.logger.WithField("company", company).WithError(err).Error("Failed to load company stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load company stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company_name":   company,
		"total_articles": stats.TotalArticles,
		"by_source":      stats.BySource,
	})
}
