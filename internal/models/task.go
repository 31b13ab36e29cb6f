package models

import "time"

const (
	TaskCriticalAlert = "critical_alert"
	TaskRoleExpiry    = "role_expiry"
)

// Task is one upstream event waiting for the ingestion workers.
type Task struct {
	RequestID string    `json:"request_id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// critical_alert
	Alert          *AlertCreate `json:"alert,omitempty"`
	AssignedUserID string       `json:"assigned_user_id,omitempty"`
	DoctorEmail    string       `json:"doctor_email,omitempty"`
	PhoneNumber    string       `json:"phone_number,omitempty"`

	// role_expiry
	UserID     string `json:"user_id,omitempty"`
	Role       string `json:"role,omitempty"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	Email      string `json:"email,omitempty"`
}
