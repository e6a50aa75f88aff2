package errors

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrorInfo carries a parsed error code and message.
type ErrorInfo struct {
	Code    string
	Message string
}

// IsUniqueViolation reports whether err is a uniqueness-constraint failure.
// Postgres reports 23505 ("duplicate key value violates unique constraint"),
// SQLite reports "UNIQUE constraint failed". The cart upsert and the
// settlement guards both branch on this.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed")
}

// ParseError converts a storage error into a user-presentable code/message.
// Sensitive detail stays out of the message; the raw error is for logs only.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Code:    InternalServerError,
			Message: "An internal error occurred",
		}
	}

	errStr := err.Error()
	errStrLower := strings.ToLower(errStr)

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Code:    ResourceNotFound,
			Message: getNotFoundMessage(context),
		}
	}

	if IsUniqueViolation(err) {
		return parseDuplicateKeyError(errStr, context)
	}

	if strings.Contains(errStrLower, "foreign key constraint") {
		return ErrorInfo{
			Code:    ValidationInvalidID,
			Message: "A referenced record does not exist",
		}
	}

	if strings.Contains(errStrLower, "null value") && strings.Contains(errStrLower, "not-null constraint") {
		return ErrorInfo{
			Code:    ValidationRequired,
			Message: "A required field is missing",
		}
	}

	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "timeout") {
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "An upstream service is unavailable. Please try again shortly",
		}
	}

	return ErrorInfo{
		Code:    InternalServerError,
		Message: "An internal error occurred",
	}
}

func parseDuplicateKeyError(errStr string, context string) ErrorInfo {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "uidx_carts_active") {
		// Resolved internally by the get-or-create retry path; if it reaches
		// a response, the operation raced and the client should re-resolve.
		return ErrorInfo{
			Code:    ResourceConflict,
			Message: "An active cart already exists for this customer at this location",
		}
	}
	if strings.Contains(errLower, "uidx_loyalty_earned_order") {
		return ErrorInfo{
			Code:    ResourceAlreadyExists,
			Message: "Loyalty points were already awarded for this order",
		}
	}
	if strings.Contains(errLower, "uidx_inventory_deltas_sale") {
		return ErrorInfo{
			Code:    ResourceAlreadyExists,
			Message: "Inventory was already deducted for this order",
		}
	}
	if strings.Contains(errLower, "queue_entries") {
		return ErrorInfo{
			Code:    QueueCartEnqueued,
			Message: "This cart is already in the queue",
		}
	}
	if strings.Contains(errLower, "uidx_orders_intent") {
		return ErrorInfo{
			Code:    ResourceAlreadyExists,
			Message: "An order already exists for this payment",
		}
	}

	return ErrorInfo{
		Code:    ResourceAlreadyExists,
		Message: "The record already exists",
	}
}

func getNotFoundMessage(context string) string {
	switch context {
	case "cart":
		return "Cart not found"
	case "cart_item":
		return "Cart item not found"
	case "queue":
		return "Queue entry not found"
	case "intent":
		return "Payment intent not found"
	case "order":
		return "Order not found"
	case "product":
		return "Product not found"
	case "customer":
		return "Customer not found"
	default:
		return "The requested record was not found"
	}
}
