package escalation

import (
	"strings"

	"escalation-service/internal/models"
)

// ValidationError lists the required fields an escalation was missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required escalation fields: " + strings.Join(e.Missing, ", ")
}

// Validate checks the fields without which an escalation is a caller bug.
func Validate(in models.EscalationInput) error {
	var missing []string
	if strings.TrimSpace(in.Reason) == "" {
		missing = append(missing, "reason")
	}
	if strings.TrimSpace(in.PatientName) == "" {
		missing = append(missing, "patient_name")
	}
	if strings.TrimSpace(in.EscalatedBy) == "" {
		missing = append(missing, "escalated_by")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
