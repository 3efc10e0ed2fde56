package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleStream pushes the caller's view and notifications as server-sent
// events. The first event is always the current view.
func (h *httpHandler) handleStream(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	userID := controller.Identity().UserID
	ctx := c.Request.Context()

	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(RealtimeEventFeed, controller.View())
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, message.Payload)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": tick.UTC().Unix()})
			return true
		}
	})
}
