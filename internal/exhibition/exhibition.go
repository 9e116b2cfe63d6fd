package exhibition

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("exhibition not found")

// Exhibition is the read-only metadata this service needs to decide entry
// and pricing. Price is ignored when IsOnSale is false.
type Exhibition struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	EndDate         time.Time `json:"endDate"`
	IsOnSale        bool      `json:"isOnSale"`
	PriceMinorUnits int64     `json:"priceMinorUnits"`
}

// Content is the full view payload served once entry is granted.
type Content struct {
	Exhibition
	Description string          `json:"description"`
	Body        json.RawMessage `json:"content"`
}

func (e Exhibition) ExpiredAt(now time.Time) bool {
	return now.After(e.EndDate)
}

// Free reports whether the exhibition can be entered without an order.
func (e Exhibition) Free() bool {
	return !e.IsOnSale || e.PriceMinorUnits == 0
}

func (e Exhibition) OwnedBy(userID string) bool {
	return userID != "" && e.OwnerID == userID
}
