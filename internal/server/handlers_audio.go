package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/gin-gonic/gin"
)

const (
	audioFormField    = "audio"
	multipartOverhead = 1 << 20
	msgMissingAudio   = "audio file is required"
	msgAudioTooLarge  = "audio file exceeds the %d MB limit"
	bytesPerMegabyte  = 1 << 20
)

func (h *httpHandler) handleUploadAudio(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	fileHeader, err := c.FormFile(audioFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": h.tooLargeMessage()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingAudio})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": h.tooLargeMessage()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingAudio})
		return
	}
	defer file.Close()

	job, err := h.audioService.UploadAudio(c.Request.Context(), c.Param("id"), audio.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.writeError(c, "upload_audio", err)
		return
	}
	h.realtime.JobStatusChanged(job)
	c.JSON(http.StatusCreated, job)
}

func (h *httpHandler) handleListAudioJobs(c *gin.Context) {
	jobs, err := h.audioService.ListJobsForNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "list_audio_jobs", err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// handleProcessAudio runs the pipeline for the note's latest job and blocks until it finishes.
func (h *httpHandler) handleProcessAudio(c *gin.Context) {
	job, err := h.audioService.LatestJobForNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "process_audio", err)
		return
	}
	processed, err := h.processor.Process(c.Request.Context(), job.ID)
	if err != nil {
		h.writeError(c, "process_audio", err)
		return
	}
	c.JSON(http.StatusOK, processed)
}

func (h *httpHandler) tooLargeMessage() string {
	return fmt.Sprintf(msgAudioTooLarge, h.maxUploadBytes/bytesPerMegabyte)
}
