package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/go-askgate/askgate/internal/askapi"
	"github.com/go-askgate/askgate/internal/middleware"
	"github.com/go-askgate/askgate/internal/services"
	"github.com/go-askgate/askgate/internal/token"
)

// AskHandler proxies natural-language questions to the protected analytics
// API on behalf of the session user.
type AskHandler struct {
	ask    *askapi.Client
	auth   *services.AuthService
	logger *slog.Logger
}

// NewAskHandler creates an AskHandler.
func NewAskHandler(ask *askapi.Client, auth *services.AuthService, logger *slog.Logger) *AskHandler {
	return &AskHandler{ask: ask, auth: auth, logger: logger}
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask handles POST /ask. When no usable token exists — or the upstream
// rejects the one we have — a fresh authorization flow is begun and its
// consent URL returned so the UI can send the user through it.
func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid_request",
			"detail": "question is required",
		})
		return
	}

	key := middleware.UserKey(c)
	rows, err := h.ask.Ask(c.Request.Context(), key, req.Question)
	if err == nil {
		// Rows are passed through unmodified; shaping them is the UI's job.
		c.JSON(http.StatusOK, rows)
		return
	}

	if errors.Is(err, token.ErrAuthorizationRequired) {
		url, beginErr := h.auth.Begin(c.Request.Context(), key)
		if beginErr != nil {
			h.logger.Error("failed to begin authorization", "user", key, "error", beginErr)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization_start_failed"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "authorization_required",
			"authorization_url": url,
		})
		return
	}

	var apiErr *askapi.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "upstream_error",
			"status": apiErr.Status,
			"detail": apiErr.Detail,
		})
		return
	}

	h.logger.Error("question request failed", "user", key, "error", err)
	c.JSON(http.StatusBadGateway, gin.H{
		"error":  "upstream_error",
		"detail": err.Error(),
	})
}

// Health is the liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
