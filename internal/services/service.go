package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"escalation-service/internal/config"
	"escalation-service/internal/logging"
	"escalation-service/internal/metrics"
	"escalation-service/internal/models"
	"escalation-service/internal/notification"
)

// SystemActor is the escalatedBy recorded for escalations nobody started by hand.
const SystemActor = "system"

type AlertLifecycle interface {
	Create(ctx context.Context, in models.AlertCreate) (models.CriticalAlert, error)
	Escalate(ctx context.Context, id string, in models.EscalationInput) (models.CriticalAlert, models.EscalationResult, error)
}

type Inbox interface {
	RecordInternalNotification(ctx context.Context, userID, title, body string, meta models.NotificationMeta) (models.Notification, error)
}

type ExpiryNotifier interface {
	NotifyRoleExpiry(ctx context.Context, in notification.RoleExpiry) (bool, error)
}

// Service processes upstream Tasks on a bounded worker pool
type Service struct {
	alerts AlertLifecycle
	inbox  Inbox
	expiry ExpiryNotifier
	logger *logging.Logger
	config config.Config
	tasks  chan models.Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// New constructs a services Service
func New(alerts AlertLifecycle, inbox Inbox, expiry ExpiryNotifier, logger *logging.Logger, cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		alerts: alerts,
		inbox:  inbox,
		expiry: expiry,
		logger: logger,
		config: cfg,
		tasks:  make(chan models.Task, cfg.Notification.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Logger exposes the Service's logger
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Start launches the worker pool
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.Notification.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the workers; queued tasks that were not picked up are dropped.
func (s *Service) Stop() {
	s.cancel()
}

// QueueTask enqueues a Task for processing and reports whether it fit in the queue
func (s *Service) QueueTask(task models.Task) bool {
	select {
	case s.tasks <- task:
		s.logger.Infof("Queued task: request_id=%s type=%s", task.RequestID, task.Type)
		return true
	default:
		metrics.EventsIngested.WithLabelValues(task.Type, "dropped").Inc()
		s.logger.Errorf("Queue full, dropping task: request_id=%s", task.RequestID)
		return false
	}
}

// worker processes Tasks until context is cancelled
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(s.ctx, task)
		}
	}
}

func (s *Service) handleTask(ctx context.Context, task models.Task) {
	log := s.logger.WithRequest(task.RequestID)
	var err error
	switch task.Type {
	case models.TaskCriticalAlert:
		err = s.handleCriticalAlert(ctx, log, task)
	case models.TaskRoleExpiry:
		err = s.handleRoleExpiry(ctx, log, task)
	default:
		err = fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		metrics.EventsIngested.WithLabelValues(task.Type, "failed").Inc()
		log.Errorf("Task failed: %v", err)
		return
	}
	metrics.EventsIngested.WithLabelValues(task.Type, "processed").Inc()
}

// handleCriticalAlert raises the alert, tells the assigned doctor about vitals
// alerts and, when configured, escalates critical ones straight away.
func (s *Service) handleCriticalAlert(ctx context.Context, log *logrus.Entry, task models.Task) error {
	if task.Alert == nil {
		return fmt.Errorf("critical_alert task without alert payload")
	}
	alert, err := s.alerts.Create(ctx, *task.Alert)
	if err != nil {
		return err
	}
	log.Infof("Alert %s raised (%s, %s)", alert.ID, alert.AlertType, alert.Severity)

	recipient := task.AssignedUserID
	if recipient == "" {
		recipient = alert.AssignedDoctor
	}
	if alert.AlertType == models.AlertTypeVitals && recipient != "" {
		title := fmt.Sprintf("Vitals alert: %s", alert.PatientName)
		meta := models.VitalsAlertMeta{AlertID: alert.ID, Severity: alert.Severity}
		if _, err := s.inbox.RecordInternalNotification(ctx, recipient, title, alert.Message, meta); err != nil {
			log.Errorf("Failed to record vitals notification for %s: %v", recipient, err)
		}
	}

	if !s.config.Escalation.AutoEscalateCritical || alert.Severity != models.SeverityCritical {
		return nil
	}
	reason := alert.Message
	if reason == "" {
		reason = fmt.Sprintf("Critical %s alert", alert.AlertType)
	}
	_, res, err := s.alerts.Escalate(ctx, alert.ID, models.EscalationInput{
		Reason:           reason,
		EscalatedBy:      SystemActor,
		DoctorEmail:      task.DoctorEmail,
		PhoneNumber:      task.PhoneNumber,
		Urgency:          "immediate",
		FollowUpRequired: true,
	})
	if err != nil {
		return fmt.Errorf("auto-escalate alert %s: %w", alert.ID, err)
	}
	log.Infof("Alert %s auto-escalated: success=%t sent=%d", alert.ID, res.Success, res.NotificationsSent)

	if recipient != "" {
		meta := models.AutoEscalationMeta{AlertID: alert.ID, Reason: reason}
		body := fmt.Sprintf("%s was escalated automatically: %d notification(s) sent.", alert.PatientName, res.NotificationsSent)
		if _, err := s.inbox.RecordInternalNotification(ctx, recipient, "Alert auto-escalated", body, meta); err != nil {
			log.Errorf("Failed to record auto-escalation notification for %s: %v", recipient, err)
		}
	}
	return nil
}

func (s *Service) handleRoleExpiry(ctx context.Context, log *logrus.Entry, task models.Task) error {
	created, err := s.expiry.NotifyRoleExpiry(ctx, notification.RoleExpiry{
		UserID:     task.UserID,
		Role:       task.Role,
		ExpiryDate: task.ExpiryDate,
		Email:      task.Email,
	})
	if err != nil {
		return err
	}
	if created {
		log.Infof("Role expiry notice recorded for user %s (%s)", task.UserID, task.Role)
	}
	return nil
}
