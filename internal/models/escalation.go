package models

import (
	"strings"
	"time"
)

// Channel names one delivery mechanism.
type Channel string

const (
	ChannelEmail         Channel = "email"
	ChannelDirectMessage Channel = "direct_message"
	ChannelInternal      Channel = "internal"
)

const (
	EscalationStatusInitiated = "initiated"
	EscalationStatusCompleted = "completed"
)

// EscalationInput is the command handed to the coordinator. It is not stored as-is.
type EscalationInput struct {
	PatientName        string   `json:"patient_name"`
	Reason             string   `json:"reason"`
	EscalatedBy        string   `json:"escalated_by"`
	DoctorEmail        string   `json:"doctor_email,omitempty"`
	PhoneNumber        string   `json:"phone_number,omitempty"`
	Severity           string   `json:"severity,omitempty"`
	BusinessID         string   `json:"business_id,omitempty"`
	AlertID            string   `json:"alert_id,omitempty"`
	Urgency            string   `json:"urgency,omitempty"`
	AdditionalContacts []string `json:"additional_contacts,omitempty"`
	Instructions       string   `json:"instructions,omitempty"`
	FollowUpRequired   bool     `json:"follow_up_required,omitempty"`
}

// EscalationResult summarizes one Escalate call for the caller.
type EscalationResult struct {
	Success           bool     `json:"success"`
	EscalationID      string   `json:"escalation_id,omitempty"`
	NotificationsSent int      `json:"notifications_sent"`
	Errors            []string `json:"errors,omitempty"`
}

// Escalation is the header record written before any channel is attempted.
type Escalation struct {
	ID                string          `json:"id"`
	Input             EscalationInput `json:"input"`
	Status            string          `json:"status"`
	NotificationsSent int             `json:"notifications_sent"`
	Errors            []string        `json:"errors,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// ChannelAction is one channel attempt made during an escalation.
type ChannelAction struct {
	Channel Channel `json:"channel"`
	Target  string  `json:"target"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

// EscalationRecord is an immutable entry in an alert's escalation log.
type EscalationRecord struct {
	ID                string          `json:"id"`
	AlertID           string          `json:"alert_id"`
	EscalationID      string          `json:"escalation_id"`
	Timestamp         time.Time       `json:"timestamp"`
	EscalatedBy       string          `json:"escalated_by"`
	Reason            string          `json:"reason"`
	Severity          string          `json:"severity,omitempty"`
	Urgency           string          `json:"urgency,omitempty"`
	NotifiedPersons   []string        `json:"notified_persons"`
	ActionsTaken      []ChannelAction `json:"actions_taken"`
	FollowUpRequired  bool            `json:"follow_up_required"`
	Status            string          `json:"status"`
	NotificationsSent int             `json:"notifications_sent"`
	Errors            []string        `json:"errors,omitempty"`
}

// IsEmailContact reports whether an additional contact should go out as email.
func IsEmailContact(contact string) bool {
	return strings.Contains(contact, "@")
}
