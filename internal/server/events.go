package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/gin-gonic/gin"
)

type jobEventPayload struct {
	NoteID    string         `json:"note_id"`
	Job       audio.AudioJob `json:"job"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

type heartbeatPayload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// handleNoteEvents streams job-status events for one note. The latest known job, if any,
// is sent first so late subscribers see the current state.
func (h *httpHandler) handleNoteEvents(c *gin.Context) {
	ctx := c.Request.Context()
	note, err := h.notesService.GetNote(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, "note_events", err)
		return
	}

	stream, cleanup := h.realtime.Subscribe(ctx, note.ID)
	defer cleanup()

	latest, err := h.audioService.LatestJobForNote(ctx, note.ID)
	hasLatest := err == nil
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		h.writeError(c, "note_events", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if hasLatest {
		c.SSEvent(RealtimeEventJobStatus, jobEventPayload{
			NoteID:    note.ID,
			Job:       latest,
			Source:    realtimeSourceBackend,
			Timestamp: time.Now().UTC(),
		})
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, jobEventPayload{
				NoteID:    message.NoteID,
				Job:       message.Job,
				Source:    realtimeSourceBackend,
				Timestamp: message.Timestamp,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
				Source:    realtimeSourceBackend,
				Timestamp: tick.UTC(),
			})
			return true
		}
	})
}
