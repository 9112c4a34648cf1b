// Package handlers contains the gin handlers for the gateway's HTTP surface.
package handlers

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/go-askgate/askgate/internal/middleware"
	"github.com/go-askgate/askgate/internal/services"
	"github.com/go-askgate/askgate/internal/token"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded callback pages for use with gin's HTML
// renderer.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// AuthHandler exposes the authorization flow over HTTP.
type AuthHandler struct {
	auth   *services.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *services.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Login begins the authorization flow for the session user and returns the
// consent URL for the UI to present as a clickable link.
func (h *AuthHandler) Login(c *gin.Context) {
	key := middleware.UserKey(c)

	url, err := h.auth.Begin(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("failed to begin authorization", "user", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization_start_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authorization_url": url})
}

// Callback receives the redirect from the authorization server and exchanges
// the code for tokens. It always renders a terminal HTML page: the browser
// tab is detached from the session that started the flow, so the user must
// be told explicitly what happened and that the tab can be closed.
func (h *AuthHandler) Callback(c *gin.Context) {
	key := middleware.UserKey(c)
	code := c.Query("code")

	err := h.auth.Complete(c.Request.Context(), key, code)
	if err == nil {
		c.HTML(http.StatusOK, "callback_success.html", gin.H{})
		return
	}

	status := http.StatusInternalServerError
	message := "an unexpected error occurred"

	var exchErr *token.ExchangeError
	switch {
	case errors.Is(err, token.ErrCodeMissing):
		status = http.StatusBadRequest
		message = "the authorization server did not return a code; access may have been denied"
	case errors.Is(err, token.ErrVerifierMissing):
		status = http.StatusBadRequest
		message = "no authorization is in progress for this session; the link may be stale"
	case errors.As(err, &exchErr):
		status = http.StatusBadGateway
		message = exchErr.Detail
	default:
		h.logger.Error("callback failed", "user", key, "error", err)
	}

	c.HTML(status, "callback_error.html", gin.H{"Error": message})
}

// Reset deletes the session user's token and any pending flow.
func (h *AuthHandler) Reset(c *gin.Context) {
	key := middleware.UserKey(c)

	if err := h.auth.Reset(c.Request.Context(), key); err != nil {
		h.logger.Error("failed to reset authorization state", "user", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
