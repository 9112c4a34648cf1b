// Package router assembles the gateway's gin engine.
package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-askgate/askgate/internal/config"
	"github.com/go-askgate/askgate/internal/handlers"
	"github.com/go-askgate/askgate/internal/middleware"
)

// SessionName is the cookie holding the per-browser session.
const SessionName = "askgate_session"

// Deps are the wired collaborators the router needs.
type Deps struct {
	Config    *config.Config
	Auth      *handlers.AuthHandler
	Ask       *handlers.AskHandler
	RateLimit gin.HandlerFunc // optional
}

// New builds the engine: session middleware, rate limiting, the embedded
// callback templates, and all routes.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	sessionStore := cookie.NewStore([]byte(d.Config.SessionSecret))
	r.Use(sessions.Sessions(SessionName, sessionStore))

	r.SetHTMLTemplate(handlers.Templates())

	if d.RateLimit != nil {
		r.Use(d.RateLimit)
	}

	r.GET("/healthz", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Everything below is scoped to a session user.
	authed := r.Group("/", middleware.Identify())
	authed.GET("/auth/login", d.Auth.Login)
	authed.POST("/auth/reset", d.Auth.Reset)
	authed.GET(config.CallbackPath, d.Auth.Callback)
	authed.POST("/ask", d.Ask.Ask)

	return r
}
