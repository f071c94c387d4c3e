// Package api implements C9's HTTP handlers: thin gin handlers that
// delegate to the service layer, respond with gin.H, and log failures
// via logrus.WithError.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/metadata"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// pollService is the subset of service.Service this package depends
// on, narrowed to a local interface for fakeability in tests.
type pollService interface {
	RunHourly(ctx context.Context) (service.HourlyResult, error)
	RunDaily(ctx context.Context) (service.DailyResult, error)
	RefreshMetadata(ctx context.Context, ids []int64, dryRun bool) (metadata.Summary, error)
}

// PollHandler exposes the hourly/daily/refresh-metadata operations.
type PollHandler struct {
	service pollService
	logger  *logrus.Logger
}

func NewPollHandler(svc *service.Service, logger *logrus.Logger) *PollHandler {
	return &PollHandler{service: svc, logger: logger}
}

// RunHourly handles POST /internal/poll/hourly.
func (h *PollHandler) RunHourly(c *gin.Context) {
	result, err := h.service.RunHourly(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("hourly poll failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result.Status == "skipped" {
		c.JSON(http.StatusOK, gin.H{
			"status":      result.Status,
			"reason":      result.Reason,
			"hour_bucket": result.HourBucket,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      result.Status,
		"hour_bucket": result.HourBucket,
		"counters": gin.H{
			"events_total":     result.EventsTotal,
			"events_succeeded": result.EventsSucceeded,
			"events_failed":    result.EventsFailed,
			"events_skipped":   result.EventsSkipped,
		},
		"total_duration_ms": result.TotalDurationMS,
	})
}

// RunDaily handles POST /internal/poll/daily.
func (h *PollHandler) RunDaily(c *gin.Context) {
	result, err := h.service.RunDaily(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("daily rollup/retention failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"retention_days":      result.RetentionDays,
		"cutoff":              result.Cutoff,
		"ended_event_count":   result.EndedEventCount,
		"deleted_hourly_rows": result.DeletedHourlyRows,
	})
}

// refreshMetadataRequest is the optional JSON body for RefreshMetadata.
type refreshMetadataRequest struct {
	EventID     int64   `json:"event_id"`
	TEEventIDs  []int64 `json:"te_event_ids"`
	DryRun      *bool   `json:"dry_run"`
}

// RefreshMetadata handles POST /internal/metadata/refresh. Id
// precedence: query event_id > body event_id > body te_event_ids[] >
// all. dry_run defaults to true.
func (h *PollHandler) RefreshMetadata(c *gin.Context) {
	var body refreshMetadataRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var queryEventID int64
	if qs := c.Query("event_id"); qs != "" {
		id, err := strconv.ParseInt(qs, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_id"})
			return
		}
		queryEventID = id
	}

	ids := metadata.SelectIDs(queryEventID, body.EventID, body.TEEventIDs)

	dryRun := true
	if body.DryRun != nil {
		dryRun = *body.DryRun
	}

	summary, err := h.service.RefreshMetadata(c.Request.Context(), ids, dryRun)
	if err != nil {
		h.logger.WithError(err).Error("metadata refresh failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"errors":    summary.Errors,
		"events":    summary.Events,
	})
}

// Healthz handles GET /healthz.
func Healthz(c *gin.Context) {
	c.Status(http.StatusOK)
}
