package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine, h *Handler, gatherer prometheus.Gatherer) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Browser-facing login flow; the callback is called by the provider's
	// redirect, so nothing here requires a session.
	auth := r.Group("/internal/auth")
	{
		auth.GET("/:provider", h.StartLogin)
		auth.GET("/:provider/callback", h.Callback)
		auth.POST("/logout", h.Logout)
	}

	authed := r.Group("/api", h.sessions.RequireSession())
	{
		authed.GET("/me", h.Me)
	}
}
