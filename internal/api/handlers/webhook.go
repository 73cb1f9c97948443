package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/models"
	"github.com/v0idhrt/radar/internal/services"
)

// TaskCollectNews is the task type the webhook enqueues and the worker pool
// consumes.
const TaskCollectNews = "collect_news"

// CompanyLookup resolves a ticker to a known company.
type CompanyLookup interface {
	GetCompanyByTicker(ctx context.Context, ticker string) (*models.Company, error)
}

// AnomalyRecorder persists evaluated anomaly events.
type AnomalyRecorder interface {
	AddAnomaly(ctx context.Context, event models.AnomalyEvent, score models.AnomalyScore) (int64, error)
}

// WebhookHandler receives anomaly events, runs the significance filter and
// enqueues collection work for admitted events.
type WebhookHandler struct {
	filter      *services.SignificanceFilter
	queue       *services.TaskQueue
	companies   CompanyLookup
	anomalies   AnomalyRecorder
	dedupWindow time.Duration
	logger      *logrus.Logger
}

// WebhookResponse is returned for every webhook call, including rejections,
// so the caller always learns what happened to its event.
type WebhookResponse struct {
	Status    string              `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	TaskID    string              `json:"task_id,omitempty"`
	Priority  string              `json:"priority,omitempty"`
	Threshold float64             `json:"threshold,omitempty"`
	Score     models.AnomalyScore `json:"score"`
}

func NewWebhookHandler(filter *services.SignificanceFilter, queue *services.TaskQueue, companies CompanyLookup, anomalies AnomalyRecorder, dedupWindow time.Duration, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		filter:      filter,
		queue:       queue,
		companies:   companies,
		anomalies:   anomalies,
		dedupWindow: dedupWindow,
		logger:      logger,
	}
}

// HandleAnomaly processes POST /api/v1/anomaly/webhook.
func (h *WebhookHandler) HandleAnomaly(c *gin.Context) {
	var event models.AnomalyEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anomaly payload: " + err.Error()})
		return
	}

	score := h.filter.Evaluate(event)

	// Persistence is best effort; a storage hiccup must not lose the event.
	if _, err := h.anomalies.AddAnomaly(c.Request.Context(), event, score); err != nil {
		h.logger.WithField("ticker", event.Ticker).WithError(err).Warn("Failed to persist anomaly")
	}

	if !score.IsSignificant {
		c.JSON(http.StatusOK, WebhookResponse{
			Status:    "filtered",
			Threshold: h.filter.Threshold(),
			Score:     score,
		})
		return
	}

	company, err := h.companies.GetCompanyByTicker(c.Request.Context(), event.Ticker)
	if err != nil {
		h.logger.WithField("ticker", event.Ticker).WithError(err).Error("Company lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "company lookup failed"})
		return
	}
	if company == nil {
		c.JSON(http.StatusOK, WebhookResponse{
			Status: "skipped",
			Reason: "ticker_not_found",
			Score:  score,
		})
		return
	}

	payload := map[string]any{
		"company_name": company.Name,
		"ticker":       event.Ticker,
	}

	// force=true re-enqueues even inside the dedup window.
	deduplicate := c.Query("force") != "true"

	priority := priorityForScore(score.Score)
	taskID, ok := h.queue.Enqueue(TaskCollectNews, payload, priority, deduplicate, h.dedupWindow)
	if !ok {
		c.JSON(http.StatusOK, WebhookResponse{
			Status: "skipped",
			Reason: "duplicate_task",
			Score:  score,
		})
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{
		Status:   "queued",
		TaskID:   taskID,
		Priority: priority.String(),
		Score:    score,
	})
}

// GetTickerStats processes GET /api/v1/anomaly/stats/:ticker.
func (h *WebhookHandler) GetTickerStats(c *gin.Context) {
	ticker := c.Param("ticker")
	c.JSON(http.StatusOK, h.filter.TickerStats(ticker))
}

// priorityForScore maps the significance score onto queue priority. Scores
// start at the admit threshold of 50, so everything below 60 is low priority.
func priorityForScore(score float64) models.TaskPriority {
	switch {
	case score >= 80:
		return models.PriorityHigh
	case score >= 60:
		return models.PriorityNormal
	default:
		return models.PriorityLow
	}
}
