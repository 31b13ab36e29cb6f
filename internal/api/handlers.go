package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"escalation-service/internal/alerts"
	"escalation-service/internal/escalation"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/notification"
)

type AlertService interface {
	Create(ctx context.Context, in models.AlertCreate) (models.CriticalAlert, error)
	Get(ctx context.Context, id string) (models.CriticalAlert, error)
	List(ctx context.Context, businessID string, includeDismissed bool) ([]models.CriticalAlert, error)
	History(ctx context.Context, id string) ([]models.EscalationRecord, error)
	Acknowledge(ctx context.Context, id, by string) (models.CriticalAlert, error)
	ChangeSeverity(ctx context.Context, id, severity string) (models.CriticalAlert, error)
	Escalate(ctx context.Context, id string, in models.EscalationInput) (models.CriticalAlert, models.EscalationResult, error)
	Dismiss(ctx context.Context, id string) error
}

type Escalator interface {
	Escalate(ctx context.Context, in models.EscalationInput) (models.EscalationResult, error)
	EscalateMultiple(ctx context.Context, inputs []models.EscalationInput) []models.EscalationResult
}

type Inbox interface {
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type ExpiryNotifier interface {
	NotifyRoleExpiry(ctx context.Context, in notification.RoleExpiry) (bool, error)
}

type Handler struct {
	alerts      AlertService
	escalations Escalator
	inbox       Inbox
	expiry      ExpiryNotifier
	hub         *notification.Hub
	logger      *logging.Logger
}

func NewHandler(alerts AlertService, escalations Escalator, inbox Inbox, expiry ExpiryNotifier, hub *notification.Hub, logger *logging.Logger) *Handler {
	return &Handler{
		alerts:      alerts,
		escalations: escalations,
		inbox:       inbox,
		expiry:      expiry,
		hub:         hub,
		logger:      logger,
	}
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var in models.AlertCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid request body for alert: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	alert, err := h.alerts.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "create alert", err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	includeDismissed, _ := strconv.ParseBool(c.Query("include_dismissed"))
	list, err := h.alerts.List(c.Request.Context(), c.Query("business_id"), includeDismissed)
	if err != nil {
		h.fail(c, "list alerts", err)
		return
	}
	if list == nil {
		list = []models.CriticalAlert{}
	}
	h.logger.Debugf("Retrieved %d alerts", len(list))
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.alerts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) GetAlertEscalations(c *gin.Context) {
	history, err := h.alerts.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get escalation history", err)
		return
	}
	if history == nil {
		history = []models.EscalationRecord{}
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	var req struct {
		AcknowledgedBy string `json:"acknowledged_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "acknowledged_by is required"})
		return
	}
	alert, err := h.alerts.Acknowledge(c.Request.Context(), c.Param("id"), req.AcknowledgedBy)
	if err != nil {
		h.fail(c, "acknowledge alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) ChangeSeverity(c *gin.Context) {
	var req struct {
		Severity string `json:"severity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity is required"})
		return
	}
	alert, err := h.alerts.ChangeSeverity(c.Request.Context(), c.Param("id"), req.Severity)
	if err != nil {
		h.fail(c, "change severity", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) EscalateAlert(c *gin.Context) {
	var in models.EscalationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	alert, res, err := h.alerts.Escalate(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, "escalate alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert, "result": res})
}

func (h *Handler) DismissAlert(c *gin.Context) {
	if err := h.alerts.Dismiss(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "dismiss alert", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Escalate answers 200 whenever the escalation ran, even if nothing was delivered.
func (h *Handler) Escalate(c *gin.Context) {
	var in models.EscalationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	res, err := h.escalations.Escalate(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "escalate", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) EscalateBatch(c *gin.Context) {
	var req struct {
		Escalations []models.EscalationInput `json:"escalations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Escalations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "escalations must be a non-empty list"})
		return
	}
	results := h.escalations.EscalateMultiple(c.Request.Context(), req.Escalations)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) GetNotificationsByUserID(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	userID := c.Param("user_id")
	list, err := h.inbox.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.fail(c, "get notifications", err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	h.logger.Debugf("Retrieved %d notifications for user %s", len(list), userID)
	c.JSON(http.StatusOK, list)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "mark notification read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) NotifyRoleExpiry(c *gin.Context) {
	var in notification.RoleExpiry
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	created, err := h.expiry.NotifyRoleExpiry(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "notify role expiry", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connect upgrades to a websocket that receives the user's inbox entries and
// direct-message links. Inbound frames are read only to notice the close.
func (h *Handler) Connect(c *gin.Context) {
	userID := c.Param("user_id")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed for user %s: %v", userID, err)
		return
	}
	defer ws.Close()

	if !h.hub.AddConnection(userID, ws) {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many sessions")
		_ = ws.WriteMessage(websocket.CloseMessage, msg)
		return
	}
	defer h.hub.RemoveConnection(userID, ws)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	var verr *escalation.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, alerts.ErrInvalidAlert),
		errors.Is(err, notification.ErrInvalidRoleExpiry):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "success": false})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, alerts.ErrAlertDismissed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("Failed to %s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op})
	}
}
