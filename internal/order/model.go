package order

import (
	"time"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Mode records which gateway issued the reference. It is fixed when the
// purchase intent is created and drives signature checking at verify time.
type Mode string

const (
	ModeReal Mode = "real"
	ModeMock Mode = "mock"
)

// Order is a purchase intent and its terminal state. Status moves only
// Created->Paid or Created->Failed; rows are never deleted.
type Order struct {
	ID                      string     `json:"id"`
	UserID                  string     `json:"user_id"`
	ExhibitorID             string     `json:"exhibitor_id"`
	ExhibitionID            string     `json:"exhibition_id"`
	GatewayReference        string     `json:"gateway_reference"`
	GatewayPaymentReference *string    `json:"gateway_payment_reference,omitempty"`
	GatewayMode             Mode       `json:"gateway_mode"`
	AmountMinorUnits        int64      `json:"amount_minor_units"`
	Currency                string     `json:"currency"`
	Status                  Status     `json:"status"`
	CreatedAt               time.Time  `json:"created_at"`
	PaidAt                  *time.Time `json:"paid_at,omitempty"`
}

func (o Order) Paid() bool {
	return o.Status == StatusPaid
}
