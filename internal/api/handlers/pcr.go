package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/pcr-tracker-go/internal/cache"
	"github.com/irfndi/pcr-tracker-go/internal/middleware"
	"github.com/irfndi/pcr-tracker-go/internal/models"
	"github.com/irfndi/pcr-tracker-go/internal/services"
	"github.com/irfndi/pcr-tracker-go/internal/sheet"
	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

// PCRController is the part of the update cycle controller the HTTP
// surface drives.
type PCRController interface {
	RunManual(ctx context.Context) services.CycleResult
	Reset(ctx context.Context) (services.ResetResult, error)
	Status() services.ControllerStatus
	Latest(ctx context.Context) (cache.LatestEntry, bool, error)
}

// PCRHandler serves the put-call-ratio endpoints.
type PCRHandler struct {
	controller PCRController
	codec      *sheet.Codec
}

// NewPCRHandler creates a handler. When codec is non-nil the latest row is
// also returned in its display form, keyed by column title.
func NewPCRHandler(controller PCRController, codec *sheet.Codec) *PCRHandler {
	return &PCRHandler{
		controller: controller,
		codec:      codec,
	}
}

// LatestResponse is the body of GET /api/v1/pcr/latest.
type LatestResponse struct {
	RowIndex int                  `json:"row_index"`
	Row      models.ReconciledRow `json:"row"`
	Display  map[string]string    `json:"display,omitempty"`
}

// GetStatus returns the controller state machine snapshot.
func (h *PCRHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// GetLatest returns the most recently written row.
func (h *PCRHandler) GetLatest(c *gin.Context) {
	entry, ok, err := h.controller.Latest(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		middleware.RecordError(c, err, "latest row lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to read latest row",
			"message": err.Error(),
		})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No rows written yet"})
		return
	}

	resp := LatestResponse{RowIndex: entry.RowIndex, Row: entry.Row}
	if h.codec != nil {
		resp.Display = h.display(entry.Row)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PCRHandler) display(row models.ReconciledRow) map[string]string {
	cells := h.codec.Encode(row)
	header := h.codec.Layout.Header()
	out := make(map[string]string, len(header))
	for i, label := range header {
		if label == "" || i >= len(cells) {
			continue
		}
		out[label] = cells[i]
	}
	return out
}

// TriggerUpdate runs one manual cycle synchronously.
func (h *PCRHandler) TriggerUpdate(c *gin.Context) {
	res := h.controller.RunManual(c.Request.Context())

	middleware.AddSpanAttribute(c, "pcr.outcome", string(res.Outcome))
	middleware.AddSpanAttribute(c, "pcr.bucket", res.Bucket)
	if res.Row > 0 {
		middleware.AddSpanAttribute(c, "pcr.row", res.Row)
	}

	switch res.Outcome {
	case services.OutcomeWritten, services.OutcomeSkipped:
		c.JSON(http.StatusOK, res)
	case services.OutcomeRejected:
		c.JSON(http.StatusConflict, res)
	default:
		if res.Err != nil {
			_ = c.Error(res.Err)
			middleware.RecordError(c, res.Err, "update cycle failed")
		}
		c.JSON(http.StatusBadGateway, res)
	}
}

// ResetData clears the data region.
func (h *PCRHandler) ResetData(c *gin.Context) {
	res, err := h.controller.Reset(c.Request.Context())
	if err != nil {
		if errors.Is(err, utils.ErrConcurrentUpdateRejected) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "Update in progress",
				"message": err.Error(),
			})
			return
		}
		_ = c.Error(err)
		middleware.RecordError(c, err, "reset failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to clear data region",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "cleared",
		"first_row": res.FirstRow,
		"last_row":  res.LastRow,
	})
}
