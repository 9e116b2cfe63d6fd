package notify

import (
	"fmt"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"
)

type Notification struct {
	Kind         contracts.NotificationKind
	RecipientID  string
	OrderID      string
	ExhibitionID string
	Subject      string
	Message      string
}

// AccessConfirmed is sent to the buyer once an order is paid.
func AccessConfirmed(buyerID, orderID, exhibitionID, title string) Notification {
	return Notification{
		Kind:         contracts.NotificationAccessConfirmed,
		RecipientID:  buyerID,
		OrderID:      orderID,
		ExhibitionID: exhibitionID,
		Subject:      "Access confirmed",
		Message:      fmt.Sprintf("Your ticket for %q is confirmed. You can enter the exhibition now.", title),
	}
}

// NewParticipant is sent to the exhibitor when someone buys access.
func NewParticipant(exhibitorID, orderID, exhibitionID, title string) Notification {
	return Notification{
		Kind:         contracts.NotificationNewParticipant,
		RecipientID:  exhibitorID,
		OrderID:      orderID,
		ExhibitionID: exhibitionID,
		Subject:      "New participant",
		Message:      fmt.Sprintf("A new visitor purchased access to %q.", title),
	}
}
