package terminalpay

import (
	"time"
)

// Transaction status values reported by the provider.
const (
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusDeclined   = "declined"
	StatusVoided     = "voided"
)

// AuthorizeRequest starts a card-present transaction on a terminal.
type AuthorizeRequest struct {
	MerchantID  string  `json:"merchant_id"`
	ReferenceID string  `json:"reference_id"` // our payment intent id
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// AuthorizeResponse is the provider's answer to an authorize call.
type AuthorizeResponse struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// CaptureRequest settles an authorized transaction.
type CaptureRequest struct {
	MerchantID    string `json:"merchant_id"`
	TransactionID string `json:"transaction_id"`
}

// CaptureResponse reports the settled transaction.
type CaptureResponse struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	CapturedAt    time.Time `json:"captured_at"`
}

// StatusResponse reports the provider-side state of a transaction. The
// reconciliation pass relies on it to decide whether a stuck intent
// actually charged the card.
type StatusResponse struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VoidRequest cancels an authorized, uncaptured transaction.
type VoidRequest struct {
	MerchantID    string `json:"merchant_id"`
	TransactionID string `json:"transaction_id"`
}

// VoidResponse reports the voided transaction.
type VoidResponse struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	VoidedAt      time.Time `json:"voided_at"`
}

// ErrorResponse is the provider's error payload.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
