// Package escalation fans a critical patient event out to every configured
// channel and leaves an audit trail behind.
package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"escalation-service/internal/logging"
	"escalation-service/internal/metrics"
	"escalation-service/internal/models"
)

const emailTemplate = "critical-escalation"

// Store holds the escalation header and the per-alert escalation log.
type Store interface {
	CreateEscalation(ctx context.Context, e models.Escalation) error
	CompleteEscalation(ctx context.Context, id string, sent int, errs []string, at time.Time) error
	AppendAlertEscalation(ctx context.Context, r models.EscalationRecord) error
}

// Notifier delivers through one channel per call. *notification.Gateway implements it.
type Notifier interface {
	SendEmail(ctx context.Context, to, templateName string, data map[string]any) (models.DeliveryResult, error)
	SendDirectMessage(ctx context.Context, msg models.DirectMessage) error
	RecordInternalNotification(ctx context.Context, userID, title, body string, meta models.NotificationMeta) (models.Notification, error)
}

type Coordinator struct {
	store      Store
	notifier   Notifier
	logger     *logging.Logger
	batchDelay time.Duration
	now        func() time.Time
}

func NewCoordinator(store Store, notifier Notifier, logger *logging.Logger, batchDelay time.Duration) *Coordinator {
	return &Coordinator{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		batchDelay: batchDelay,
		now:        time.Now,
	}
}

// Escalate attempts every channel named by in, strictly in order: doctor email,
// phone, then each additional contact. Channel failures are collected in the
// result and never stop the remaining attempts. The returned error is non-nil
// only when nothing was attempted: invalid input (*ValidationError) or a
// failure to open the audit header.
func (c *Coordinator) Escalate(ctx context.Context, in models.EscalationInput) (models.EscalationResult, error) {
	in = normalize(in)
	if err := Validate(in); err != nil {
		metrics.Escalations.WithLabelValues("invalid").Inc()
		return models.EscalationResult{Success: false}, err
	}

	started := c.now().UTC()
	header := models.Escalation{
		ID:        uuid.NewString(),
		Input:     in,
		Status:    models.EscalationStatusInitiated,
		CreatedAt: started,
	}
	if err := c.store.CreateEscalation(ctx, header); err != nil {
		metrics.Escalations.WithLabelValues("audit_failed").Inc()
		return models.EscalationResult{Success: false}, fmt.Errorf("open escalation record: %w", err)
	}
	log := c.logger.WithFields(logrus.Fields{
		"escalation_id": header.ID,
		"escalated_by":  in.EscalatedBy,
		"alert_id":      in.AlertID,
	})
	log.Infof("Escalation initiated for patient %s", in.PatientName)

	d := &dispatch{}
	data := emailData(in, header.ID, started)
	text := directMessageText(in)
	if in.DoctorEmail != "" {
		c.sendEmail(ctx, d, in.DoctorEmail, data)
	}
	if in.PhoneNumber != "" {
		c.sendDirect(ctx, d, in.EscalatedBy, in.PhoneNumber, text)
	}
	for _, contact := range in.AdditionalContacts {
		if models.IsEmailContact(contact) {
			c.sendEmail(ctx, d, contact, data)
		} else {
			c.sendDirect(ctx, d, in.EscalatedBy, contact, text)
		}
	}

	// Best-effort from here on: audit trouble is logged, never returned.
	channels := d.channels()
	meta := models.EscalationInitiatedMeta{EscalationID: header.ID, NotificationsSent: d.sent, Channels: channels}
	if _, err := c.notifier.RecordInternalNotification(ctx, in.EscalatedBy, "Escalation initiated", summary(in, d.sent, channels), meta); err != nil {
		metrics.AuditWriteFailures.WithLabelValues("internal_notification").Inc()
		log.Errorf("Failed to record internal notification: %v", err)
	}

	if in.AlertID != "" {
		record := models.EscalationRecord{
			ID:                uuid.NewString(),
			AlertID:           in.AlertID,
			EscalationID:      header.ID,
			Timestamp:         c.now().UTC(),
			EscalatedBy:       in.EscalatedBy,
			Reason:            in.Reason,
			Severity:          in.Severity,
			Urgency:           in.Urgency,
			NotifiedPersons:   d.notified,
			ActionsTaken:      d.actions,
			FollowUpRequired:  in.FollowUpRequired,
			Status:            models.EscalationStatusCompleted,
			NotificationsSent: d.sent,
			Errors:            d.errors,
		}
		if err := c.store.AppendAlertEscalation(ctx, record); err != nil {
			metrics.AuditWriteFailures.WithLabelValues("alert_log").Inc()
			log.Errorf("Failed to append escalation to alert log: %v", err)
		}
	}

	if err := c.store.CompleteEscalation(ctx, header.ID, d.sent, d.errors, c.now().UTC()); err != nil {
		metrics.AuditWriteFailures.WithLabelValues("escalation_header").Inc()
		log.Errorf("Failed to complete escalation record: %v", err)
	}

	result := models.EscalationResult{
		Success:           d.sent > 0,
		EscalationID:      header.ID,
		NotificationsSent: d.sent,
		Errors:            d.errors,
	}
	if result.Success {
		metrics.Escalations.WithLabelValues("success").Inc()
		log.Infof("Escalation completed: %d notification(s) sent, %d error(s)", d.sent, len(d.errors))
	} else {
		metrics.Escalations.WithLabelValues("no_delivery").Inc()
		log.Warnf("Escalation completed without any delivery: %v", d.errors)
	}
	return result, nil
}

// EscalateMultiple runs the inputs one after another. The batch delay is the
// gap between the end of one escalation and the start of the next. Once ctx is
// done the remaining inputs are reported as failed.
func (c *Coordinator) EscalateMultiple(ctx context.Context, inputs []models.EscalationInput) []models.EscalationResult {
	results := make([]models.EscalationResult, len(inputs))
	for i, in := range inputs {
		if err := c.pause(ctx, i > 0); err != nil {
			for j := i; j < len(inputs); j++ {
				results[j] = models.EscalationResult{Success: false, Errors: []string{fmt.Sprintf("batch stopped: %v", err)}}
			}
			c.logger.Warnf("Batch escalation stopped at %d/%d: %v", i, len(inputs), err)
			break
		}
		res, err := c.Escalate(ctx, in)
		if err != nil {
			res.Success = false
			res.Errors = append(res.Errors, err.Error())
		}
		results[i] = res
	}
	return results
}

// pause waits out the batch delay when wait is set, returning early with the
// context error once ctx is done.
func (c *Coordinator) pause(ctx context.Context, wait bool) error {
	if !wait || c.batchDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.batchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// dispatch accumulates the outcome of the channel attempts of one escalation.
type dispatch struct {
	sent     int
	errors   []string
	notified []string
	actions  []models.ChannelAction
}

func (d *dispatch) record(channel models.Channel, target string, err error) {
	d.notified = append(d.notified, target)
	action := models.ChannelAction{Channel: channel, Target: target, Success: err == nil}
	if err != nil {
		action.Error = err.Error()
		d.errors = append(d.errors, fmt.Sprintf("%s to %s: %v", channel, target, err))
	} else {
		d.sent++
	}
	d.actions = append(d.actions, action)
}

func (d *dispatch) channels() []models.Channel {
	var out []models.Channel
	seen := map[models.Channel]bool{}
	for _, a := range d.actions {
		if a.Success && !seen[a.Channel] {
			seen[a.Channel] = true
			out = append(out, a.Channel)
		}
	}
	return out
}

func (c *Coordinator) sendEmail(ctx context.Context, d *dispatch, to string, data map[string]any) {
	err := guarded(func() error {
		res, err := c.notifier.SendEmail(ctx, to, emailTemplate, data)
		if err != nil {
			return err
		}
		if !res.Success {
			if res.Error == "" {
				return fmt.Errorf("delivery rejected")
			}
			return fmt.Errorf("%s", res.Error)
		}
		return nil
	})
	d.record(models.ChannelEmail, to, err)
}

func (c *Coordinator) sendDirect(ctx context.Context, d *dispatch, actor, to, text string) {
	err := guarded(func() error {
		return c.notifier.SendDirectMessage(ctx, models.DirectMessage{ActorID: actor, To: to, Text: text})
	})
	d.record(models.ChannelDirectMessage, to, err)
}

// guarded turns a panicking provider into an ordinary channel error.
func guarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v", r)
		}
	}()
	return fn()
}

func normalize(in models.EscalationInput) models.EscalationInput {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.Reason = strings.TrimSpace(in.Reason)
	in.EscalatedBy = strings.TrimSpace(in.EscalatedBy)
	in.DoctorEmail = strings.TrimSpace(in.DoctorEmail)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	contacts := make([]string, 0, len(in.AdditionalContacts))
	for _, c := range in.AdditionalContacts {
		if c = strings.TrimSpace(c); c != "" {
			contacts = append(contacts, c)
		}
	}
	in.AdditionalContacts = contacts
	return in
}

func emailData(in models.EscalationInput, escalationID string, at time.Time) map[string]any {
	return map[string]any{
		"PatientName":  in.PatientName,
		"Reason":       in.Reason,
		"Severity":     in.Severity,
		"Urgency":      in.Urgency,
		"EscalatedBy":  in.EscalatedBy,
		"EscalationID": escalationID,
		"Instructions": in.Instructions,
		"SentAt":       at.Format(time.RFC1123),
	}
}

func directMessageText(in models.EscalationInput) string {
	severity := in.Severity
	if severity == "" {
		severity = string(models.SeverityCritical)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URGENT: patient escalation for %s (%s).\nReason: %s", in.PatientName, strings.ToUpper(severity), in.Reason)
	if in.Instructions != "" {
		fmt.Fprintf(&b, "\nInstructions: %s", in.Instructions)
	}
	fmt.Fprintf(&b, "\nEscalated by %s", in.EscalatedBy)
	return b.String()
}

func summary(in models.EscalationInput, sent int, channels []models.Channel) string {
	if sent == 0 {
		return fmt.Sprintf("Escalation for %s: no notifications sent.", in.PatientName)
	}
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = string(ch)
	}
	return fmt.Sprintf("Escalation for %s: %d notification(s) sent via %s.", in.PatientName, sent, strings.Join(names, ", "))
}
