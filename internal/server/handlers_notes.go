package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const msgInvalidBody = "invalid request body"

type createNoteRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}
	note, err := h.notesService.CreateNote(c.Request.Context(), notes.CreateInput{
		Type:    request.Type,
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.writeError(c, "create_note", err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	all, err := h.notesService.ListNotes(c.Request.Context())
	if err != nil {
		h.writeError(c, "list_notes", err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, err := h.notesService.GetNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get_note", err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	var request notes.UpdateInput
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}
	note, err := h.notesService.UpdateNote(c.Request.Context(), c.Param("id"), request)
	if err != nil {
		h.writeError(c, "update_note", err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// handleDeleteNote removes the note and then its audio. Audio purge failures are only logged.
func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID := c.Param("id")
	if err := h.notesService.DeleteNote(c.Request.Context(), noteID); err != nil {
		h.writeError(c, "delete_note", err)
		return
	}
	if err := h.audioService.PurgeNoteAudio(c.Request.Context(), noteID); err != nil {
		h.logger.Warn("failed to purge note audio",
			zap.String("note_id", noteID),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
