package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// ReportSource exposes the report of the most recent run.
type ReportSource interface {
	LastReport() *ingest.RunReport
}

// RunHandler serves run reports and the snapshot queue.
type RunHandler struct {
	reports   ReportSource
	snapshots registry.SnapshotRepository
}

func NewRunHandler(reports ReportSource, snapshots registry.SnapshotRepository) *RunHandler {
	return &RunHandler{reports: reports, snapshots: snapshots}
}

// LastRun handles GET /v1/runs/last.
func (h *RunHandler) LastRun(c *gin.Context) {
	report := h.reports.LastReport()
	if report == nil {
		writeAppError(c, errors.NotFound("no run has completed in this process"))
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListSnapshots handles GET /v1/snapshots?category=&unprocessed=&limit=.
func (h *RunHandler) ListSnapshots(c *gin.Context) {
	filter := registry.SnapshotFilter{Limit: 50}
	if v := c.Query("category"); v != "" {
		category, err := registry.ParseCategory(v)
		if err != nil {
			writeAppError(c, err)
			return
		}
		filter.Category = category
	}
	if v := c.Query("unprocessed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeAppError(c, errors.InvalidParam("unprocessed must be a boolean").WithDetail(v))
			return
		}
		filter.OnlyUnprocessed = b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeAppError(c, errors.InvalidParam("limit must be between 1 and 1000").WithDetail(v))
			return
		}
		filter.Limit = n
	}

	snapshots, err := h.snapshots.List(c.Request.Context(), filter)
	if err != nil {
		writeAppError(c, err)
		return
	}
	views := make([]SnapshotView, 0, len(snapshots))
	for _, s := range snapshots {
		views = append(views, NewSnapshotView(s))
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": views, "count": len(views)})
}

// SnapshotView is the wire form of a catalogue snapshot.
type SnapshotView struct {
	ID              int64      `json:"id"`
	Category        string     `json:"category"`
	SourceURI       string     `json:"source_uri"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

func NewSnapshotView(s *registry.Snapshot) SnapshotView {
	return SnapshotView{
		ID: s.ID, Category: string(s.Category), SourceURI: s.SourceURI,
		UploadedAt: s.UploadedAt, LastProcessedAt: s.LastProcessedAt,
	}
}
