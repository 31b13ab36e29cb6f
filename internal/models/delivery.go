package models

// DeliveryResult is the outcome a channel reports for one recipient.
type DeliveryResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DirectMessage is one chat/SMS message sent on behalf of ActorID.
type DirectMessage struct {
	ActorID string
	To      string
	Text    string
}
