package payment

import "errors"

var (
	ErrInvalidPurchaseState = errors.New("invalid purchase state")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidSignature     = errors.New("invalid signature")
)
