package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/hvac_dispatch/backend/internal/models"
)

const heartbeatInterval = 15 * time.Second

// @Summary Dispatch board
// @Description Upcoming jobs per technician. Pass refresh=1 to rebuild from storage first.
// @Tags board
// @Produce json
// @Param refresh query string false "Rebuild before reading"
// @Success 200 {object} board.Snapshot
// @Router /api/board [get]
func (h *Handler) DispatchBoard(c *gin.Context) {
	refresh := c.Query("refresh")
	if refresh == "1" || strings.EqualFold(refresh, "true") {
		if err := h.Board.Refresh(c.Request.Context()); err != nil {
			writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to refresh board", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, h.Board.Snapshot())
}

// @Summary Job event stream
// @Description Server-sent events in publish order. Filter with type and technician_id.
// @Tags board
// @Produce text/event-stream
// @Param type query string false "Event type"
// @Param technician_id query string false "Technician ID"
// @Router /api/events [get]
func (h *Handler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	typ := models.EventType(strings.ToUpper(strings.TrimSpace(c.Query("type"))))
	techID := strings.TrimSpace(c.Query("technician_id"))

	ch := make(chan models.Event, 16)
	gone := make(chan struct{})
	unsubscribe := h.Bus.Subscribe(typ, func(ev models.Event) {
		if techID != "" && ev.TechnicianID != techID && ev.PreviousTechnicianID != techID {
			return
		}
		select {
		case ch <- ev:
		case <-gone:
		}
	})
	defer unsubscribe()
	defer close(gone)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case ev := <-ch:
			c.Render(-1, sse.Event{Id: strconv.FormatUint(ev.Sequence, 10), Event: string(ev.Type), Data: ev})
			c.Writer.Flush()
		}
	}
}
