package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escalation-service/internal/config"
	"escalation-service/internal/logging"
	"escalation-service/internal/metrics"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	basePath := cfg.API.BasePath
	if basePath == "" {
		basePath = "/api/v0"
	}
	api := r.Group(basePath)
	{
		// Alerts
		api.POST("/alerts", h.CreateAlert)
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.GET("/alerts/:id/escalations", h.GetAlertEscalations)
		api.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
		api.PUT("/alerts/:id/severity", h.ChangeSeverity)
		api.POST("/alerts/:id/escalate", h.EscalateAlert)
		api.DELETE("/alerts/:id", h.DismissAlert)

		// Escalations
		api.POST("/escalations", h.Escalate)
		api.POST("/escalations/batch", h.EscalateBatch)

		// Notifications
		api.GET("/notifications/user/:user_id", h.GetNotificationsByUserID)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)
		api.POST("/role-expiry", h.NotifyRoleExpiry)

		api.GET("/ws/:user_id", h.Connect)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}
