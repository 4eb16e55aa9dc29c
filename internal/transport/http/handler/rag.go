package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type RAGHandler struct {
	ragService *app.RAGService
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

func NewRAGHandler(ragService *app.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

// Ask answers a question in one response body.
func (h *RAGHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.ragService.Ask(c.Request.Context(), userID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrEmbeddingFailed):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to process your question. Please try again.")
		case errors.Is(err, app.ErrSearchFailed):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Error searching documents. Please ensure embeddings have been generated for your files.")
		case errors.Is(err, app.ErrModelFailed):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to generate answer. Please try again.")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}

	response.OK(c, result)
}

// sseFrameSink writes frames as SSE data events and reports write failures
// so the generation loop can stop when the consumer disconnects.
type sseFrameSink struct {
	writer  gin.ResponseWriter
	flusher http.Flusher
}

func (s *sseFrameSink) Send(frame app.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := s.writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// AskStream answers a question as an SSE stream of frames. Headers go out
// before any pipeline work so even an early failure is reported in-stream.
func (h *RAGHandler) AskStream(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()

	sink := &sseFrameSink{writer: c.Writer, flusher: flusher}
	h.ragService.StreamAnswer(c.Request.Context(), userID, req.Question, sink)
}

func (h *RAGHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.ragService.GetHistory(userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		return
	}

	response.OK(c, history)
}
