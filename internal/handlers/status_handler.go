package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
)

// sseEvent is the SSE event name of status frames.
const sseEvent = "status"

func (h *handler) jobStatus(c *gin.Context) {
	ev, err := h.Status.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// jobEvents streams status snapshots until the job finishes, the stream
// times out or the client goes away.
func (h *handler) jobEvents(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("jobId")

	events, err := h.Status.Stream(ctx, jobID, h.StreamMaxWait)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for ev := range events {
		c.SSEvent(sseEvent, ev)
		c.Writer.Flush()
		if ev.TerminalState != nil {
			zerolog.Ctx(ctx).Debug().
				Str("jobId", jobID).
				Str("terminalState", string(*ev.TerminalState)).
				Msg("status stream finished")
		}
	}
}

func (h *handler) session(c *gin.Context) {
	view, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	// sessions of other users are reported as missing
	if view.UserID != currentUser(c) {
		writeError(c, fmt.Errorf("session %s %w", view.ID, apperror.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, view)
}
