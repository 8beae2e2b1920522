package models

import "github.com/punchamoorthee/invoicesync/internal/domain"

// WebhookEvent is the notification the provider posts on booking changes.
// Only BookingID drives processing; the rest is logged.
type WebhookEvent struct {
	BookingID        domain.FlexString `json:"booking_id"`
	BookingHash      string            `json:"booking_hash,omitempty"`
	Company          string            `json:"company,omitempty"`
	NotificationType string            `json:"notification_type,omitempty"`
}

// WebhookResponse is the acknowledgment returned to the provider.
type WebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}
