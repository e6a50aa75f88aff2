package errors

// Error code constants.
// Format: CATEGORY_SPECIFIC_DETAIL
// Clients map these codes to their own messaging.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized  = "AUTH_UNAUTHORIZED"   // authentication required
	AuthTokenExpired  = "AUTH_TOKEN_EXPIRED"  // token expired
	AuthTokenInvalid  = "AUTH_TOKEN_INVALID"  // malformed or bad signature
	AuthDeviceInvalid = "AUTH_DEVICE_INVALID" // unknown device or bad pairing secret

	// ==================== Authorization (AUTHZ_) ====================
	AuthzForbidden      = "AUTHZ_FORBIDDEN"       // caller's scope cannot read or mutate the row
	AuthzScopeMismatch  = "AUTHZ_SCOPE_MISMATCH"  // request keys disagree with token scope
	AuthzRoleNotAllowed = "AUTHZ_ROLE_NOT_ALLOWED"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Cart (CART_) ====================
	CartNotFound     = "CART_NOT_FOUND"
	CartNotActive    = "CART_NOT_ACTIVE"
	CartItemNotFound = "CART_ITEM_NOT_FOUND"
	CartScopeMissing = "CART_SCOPE_MISSING" // neither customer nor device key supplied

	// ==================== Stock (STOCK_) ====================
	StockOutOfStock = "STOCK_OUT_OF_STOCK" // no inventory record with positive available quantity

	// ==================== Queue (QUEUE_) ====================
	QueueEntryNotFound = "QUEUE_ENTRY_NOT_FOUND"
	QueueCartEnqueued  = "QUEUE_CART_ALREADY_ENQUEUED"

	// ==================== Payment intents (INTENT_) ====================
	IntentNotFound        = "INTENT_NOT_FOUND"
	IntentAlreadyTerminal = "INTENT_ALREADY_TERMINAL"
	IntentNotCancelable   = "INTENT_NOT_CANCELABLE" // cancellation permitted from pending only
	IntentInvalidAmount   = "INTENT_INVALID_AMOUNT"

	// ==================== Settlement (SETTLEMENT_) ====================
	SettlementReconciliationRequired = "SETTLEMENT_RECONCILIATION_REQUIRED"

	// ==================== Catalog (PRODUCT_) ====================
	ProductNotFound = "PRODUCT_NOT_FOUND"
	TierNotFound    = "PRODUCT_TIER_NOT_FOUND"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError = "INTERNAL_SERVER_ERROR"
	InternalExternalAPI = "INTERNAL_EXTERNAL_API"
)
