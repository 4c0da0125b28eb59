package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const msgInvalidQuery = "Query is required and must be a string"

type chatQueryRequest struct {
	Query json.RawMessage `json:"query"`
}

func (h *httpHandler) handleChatQuery(c *gin.Context) {
	var request chatQueryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidQuery})
		return
	}
	var query string
	if len(request.Query) == 0 || json.Unmarshal(request.Query, &query) != nil || query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidQuery})
		return
	}

	answer, err := h.chatEngine.Query(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, "chat_query", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}
