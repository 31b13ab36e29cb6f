package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the coarse urgency classification shared by alerts and triage.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity normalizes s and rejects anything outside the four known levels.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// PriorityFor maps a severity to its display priority (critical=5 ... low=2).
func PriorityFor(s Severity) int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	default:
		return 2
	}
}

// AlertType classifies where an alert came from.
type AlertType string

const (
	AlertTypeVitals     AlertType = "vitals"
	AlertTypeMedication AlertType = "medication"
	AlertTypeEmergency  AlertType = "emergency"
	AlertTypeLab        AlertType = "lab"
	AlertTypeOther      AlertType = "other"
)

// ParseAlertType falls back to AlertTypeOther for an empty value.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return AlertTypeOther, nil
	case AlertTypeVitals, AlertTypeMedication, AlertTypeEmergency, AlertTypeLab, AlertTypeOther:
		return t, nil
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

// AlertStatus is the lifecycle state of a CriticalAlert.
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusEscalated    AlertStatus = "escalated"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// CriticalAlert is a patient event raised by a caregiver or an upstream monitor.
type CriticalAlert struct {
	ID                string             `json:"id"`
	BusinessID        string             `json:"business_id,omitempty"`
	PatientName       string             `json:"patient_name"`
	Message           string             `json:"message"`
	Severity          Severity           `json:"severity"`
	Triage            Severity           `json:"triage"`
	Priority          int                `json:"priority"`
	AlertType         AlertType          `json:"alert_type"`
	Ward              string             `json:"ward,omitempty"`
	Hospital          string             `json:"hospital,omitempty"`
	Diagnosis         string             `json:"diagnosis,omitempty"`
	AssignedDoctor    string             `json:"assigned_doctor,omitempty"`
	Status            AlertStatus        `json:"status"`
	Acknowledged      bool               `json:"acknowledged"`
	AcknowledgedAt    *time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    string             `json:"acknowledged_by,omitempty"`
	EscalationHistory []EscalationRecord `json:"escalation_history,omitempty"`
	LastEscalated     *time.Time         `json:"last_escalated,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// SetSeverity updates severity, triage and priority together.
func (a *CriticalAlert) SetSeverity(s Severity) {
	a.Severity = s
	a.Triage = s
	a.Priority = PriorityFor(s)
}

// Acknowledge stamps the acknowledgement pair; a repeat call overwrites it.
func (a *CriticalAlert) Acknowledge(by string, at time.Time) {
	a.Acknowledged = true
	a.AcknowledgedAt = &at
	a.AcknowledgedBy = by
	if a.Status == AlertStatusOpen {
		a.Status = AlertStatusAcknowledged
	}
}

// AlertCreate is the input for raising a new alert.
type AlertCreate struct {
	BusinessID     string `json:"business_id"`
	PatientName    string `json:"patient_name" binding:"required"`
	Message        string `json:"message"`
	Severity       string `json:"severity" binding:"required"`
	AlertType      string `json:"alert_type"`
	Ward           string `json:"ward"`
	Hospital       string `json:"hospital"`
	Diagnosis      string `json:"diagnosis"`
	AssignedDoctor string `json:"assigned_doctor"`
}
