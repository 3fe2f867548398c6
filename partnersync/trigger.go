package partnersync

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

var ErrInvalidRange = errors.New("invalid date range: end before start")

// newQueuedSyncRun shapes the run row for a manual trigger. Dates are
// truncated so the range always covers whole business days.
func newQueuedSyncRun(locationRef string, start, end time.Time) models.SyncRun {
	rangeStart := utils.TruncateToDate(start)
	rangeEnd := utils.TruncateToDate(end)
	return models.SyncRun{
		JobType:     "partner-sync",
		LocationRef: locationRef,
		Status:      models.SyncRunStatusQueued,
		TriggeredBy: models.SyncTriggeredManual,
		RangeStart:  &rangeStart,
		RangeEnd:    &rangeEnd,
	}
}

// syncRunPayload is the Pub/Sub message for a queued run; ProcessSyncRun
// parses the dates back out on delivery.
func syncRunPayload(run *models.SyncRun) SyncPubSubPayload {
	return SyncPubSubPayload{
		RunId:       run.ID,
		LocationRef: run.LocationRef,
		RangeStart:  run.RangeStart.Format(utils.DateLayout),
		RangeEnd:    run.RangeEnd.Format(utils.DateLayout),
	}
}

// QueueSyncRun inserts a queued run and publishes it for the push endpoint
// to pick up. The row exists before the publish, so a duplicate delivery
// finds it finished and a failed publish leaves a failed row behind rather
// than a silent gap.
func QueueSyncRun(ctx context.Context, db *gorm.DB, locationRef string, start, end time.Time) (*models.SyncRun, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	run := newQueuedSyncRun(locationRef, start, end)
	if err := models.CreateSyncRun(ctx, db, &run); err != nil {
		return nil, err
	}

	if err := PublishSyncRun(ctx, syncRunPayload(&run)); err != nil {
		_ = db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
			"status":      models.SyncRunStatusFailed,
			"error_count": 1,
		}).Error
		return nil, err
	}
	return &run, nil
}

// TriggerSyncHandler queues a sync run over an explicit date range and
// returns 202; ingestion happens asynchronously via the Pub/Sub push
// endpoint.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		start, err := utils.ParseDate(req.Start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
			return
		}
		end, err := utils.ParseDate(req.End)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
			return
		}

		run, err := QueueSyncRun(c.Request.Context(), config.GetDB(), req.LocationRef, start, end)
		if err != nil {
			if errors.Is(err, ErrInvalidRange) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"runId": run.ID, "status": run.Status})
	}
}
