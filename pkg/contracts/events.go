package contracts

import "time"

const EventNotificationRequested = "notifications.requested"

type NotificationKind string

const (
	NotificationAccessConfirmed NotificationKind = "access_confirmed"
	NotificationNewParticipant  NotificationKind = "new_participant"
)

// NotificationRequestedEvent asks the notification worker to deliver one
// message to one user.
type NotificationRequestedEvent struct {
	EventID      string           `json:"event_id"`
	Kind         NotificationKind `json:"kind"`
	RecipientID  string           `json:"recipient_id"`
	OrderID      string           `json:"order_id"`
	ExhibitionID string           `json:"exhibition_id"`
	Subject      string           `json:"subject"`
	Message      string           `json:"message"`
	RequestedAt  time.Time        `json:"requested_at"`
}
