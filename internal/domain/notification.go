package domain

import "time"

// TransitionKind classifies a lifecycle transition event.
type TransitionKind string

const (
	TransitionJoiner     TransitionKind = "joiner"
	TransitionMover      TransitionKind = "mover"
	TransitionLeaver     TransitionKind = "leaver"
	TransitionExpiration TransitionKind = "expiration-stage"
)

// DeliveryStatus tracks an event through the notification outbox.
type DeliveryStatus string

const (
	DeliveryPending         DeliveryStatus = "pending"
	DeliveryDelivered       DeliveryStatus = "delivered"
	DeliveryFailedExhausted DeliveryStatus = "failed-exhausted"
)

// NotificationEvent describes one lifecycle transition for delivery to
// external endpoints. Delivery is at-least-once, FIFO per principal.
type NotificationEvent struct {
	ID          string         `json:"id"`
	PrincipalID string         `json:"principal_id"`
	Kind        TransitionKind `json:"kind"`
	From        string         `json:"from,omitempty"`
	To          string         `json:"to,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`

	Status   DeliveryStatus `json:"status,omitempty"`
	Attempts int            `json:"attempts,omitempty"`
}
