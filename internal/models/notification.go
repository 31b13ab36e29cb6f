package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	MetaRoleExpiry          = "role-expiry"
	MetaEscalationInitiated = "escalation-initiated"
	MetaVitalsAlert         = "vitals-alert"
	MetaAutoEscalation      = "auto-escalation"
)

// NotificationMeta is the typed payload attached to a Notification. Each variant
// carries only the fields its meta type needs.
type NotificationMeta interface {
	MetaType() string
}

// RoleExpiryMeta marks a notice about an expiring role assignment.
type RoleExpiryMeta struct {
	Role       string `json:"role"`
	ExpiryDate string `json:"expiry_date"`
}

func (RoleExpiryMeta) MetaType() string { return MetaRoleExpiry }

// EscalationInitiatedMeta is recorded for the actor who started an escalation.
type EscalationInitiatedMeta struct {
	EscalationID      string    `json:"escalation_id"`
	NotificationsSent int       `json:"notifications_sent"`
	Channels          []Channel `json:"channels"`
}

func (EscalationInitiatedMeta) MetaType() string { return MetaEscalationInitiated }

// VitalsAlertMeta points at the alert raised by a vitals monitor.
type VitalsAlertMeta struct {
	AlertID  string   `json:"alert_id"`
	Severity Severity `json:"severity"`
}

func (VitalsAlertMeta) MetaType() string { return MetaVitalsAlert }

// AutoEscalationMeta is recorded when the system escalates without a human actor.
type AutoEscalationMeta struct {
	AlertID string `json:"alert_id"`
	Reason  string `json:"reason"`
}

func (AutoEscalationMeta) MetaType() string { return MetaAutoEscalation }

// Notification is an internal inbox record.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
	Meta      NotificationMeta `json:"-"`
}

// MetaType returns the meta type of n, or "" when n has no meta.
func (n Notification) MetaType() string {
	if n.Meta == nil {
		return ""
	}
	return n.Meta.MetaType()
}

// MarshalJSON flattens the meta variant next to its discriminator.
func (n Notification) MarshalJSON() ([]byte, error) {
	type Alias Notification
	return json.Marshal(&struct {
		MetaType string           `json:"meta_type,omitempty"`
		Meta     NotificationMeta `json:"meta,omitempty"`
		*Alias
	}{
		MetaType: n.MetaType(),
		Meta:     n.Meta,
		Alias:    (*Alias)(&n),
	})
}

// UnmarshalJSON restores the meta variant named by meta_type.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type Alias Notification
	aux := &struct {
		MetaType string          `json:"meta_type"`
		Meta     json.RawMessage `json:"meta"`
		*Alias
	}{
		Alias: (*Alias)(n),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	meta, err := DecodeMeta(aux.MetaType, aux.Meta)
	if err != nil {
		return err
	}
	n.Meta = meta
	return nil
}

// DecodeMeta builds the meta variant for metaType from its JSON encoding.
func DecodeMeta(metaType string, raw []byte) (NotificationMeta, error) {
	var meta NotificationMeta
	switch metaType {
	case "":
		return nil, nil
	case MetaRoleExpiry:
		meta = &RoleExpiryMeta{}
	case MetaEscalationInitiated:
		meta = &EscalationInitiatedMeta{}
	case MetaVitalsAlert:
		meta = &VitalsAlertMeta{}
	case MetaAutoEscalation:
		meta = &AutoEscalationMeta{}
	default:
		return nil, fmt.Errorf("unknown notification meta type %q", metaType)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, fmt.Errorf("invalid %s meta: %w", metaType, err)
		}
	}
	// Hand back value types so callers can type-switch on a single form.
	switch m := meta.(type) {
	case *RoleExpiryMeta:
		return *m, nil
	case *EscalationInitiatedMeta:
		return *m, nil
	case *VitalsAlertMeta:
		return *m, nil
	case *AutoEscalationMeta:
		return *m, nil
	}
	return meta, nil
}

// NotificationFilter selects notifications by equality on the given fields;
// empty fields are ignored.
type NotificationFilter struct {
	UserID     string
	MetaType   string
	Role       string
	ExpiryDate string
}

// Matches reports whether n satisfies every non-empty field of f.
func (f NotificationFilter) Matches(n Notification) bool {
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if f.MetaType != "" && n.MetaType() != f.MetaType {
		return false
	}
	if f.Role != "" || f.ExpiryDate != "" {
		re, ok := n.Meta.(RoleExpiryMeta)
		if !ok {
			return false
		}
		if f.Role != "" && re.Role != f.Role {
			return false
		}
		if f.ExpiryDate != "" && re.ExpiryDate != f.ExpiryDate {
			return false
		}
	}
	return true
}
