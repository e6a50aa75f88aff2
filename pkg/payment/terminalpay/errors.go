package terminalpay

import "errors"

var (
	// ErrInvalidRequest is returned when the request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrDeclined is returned when the card is declined
	ErrDeclined = errors.New("payment declined")

	// ErrInvalidTransaction is returned when the transaction id is unknown
	ErrInvalidTransaction = errors.New("invalid transaction id")

	// ErrNetworkError is returned on a network communication error
	ErrNetworkError = errors.New("network error")

	// ErrUnauthorized is returned when the API key is invalid
	ErrUnauthorized = errors.New("unauthorized: invalid API key")
)
