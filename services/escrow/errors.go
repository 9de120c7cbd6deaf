package escrow

import "errors"

// Validation errors reject malformed input before any state is touched.
var (
	ErrInvalidSessionID = errors.New("session id must be 64 lowercase hex characters")
	ErrInvalidPayee     = errors.New("payee is invalid")
	ErrUnsupportedAsset = errors.New("asset is not supported")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidDuration  = errors.New("scheduled duration must be greater than zero")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrReasonRequired   = errors.New("a reason is required")
	ErrBatchTooLarge    = errors.New("too many sessions in one batch")
)

// Authorization and state errors.
var (
	ErrNotFound        = errors.New("session not found")
	ErrUnauthorized    = errors.New("caller is not allowed to perform this operation")
	ErrWrongState      = errors.New("operation is not valid in the current session state")
	ErrTimeoutExceeded = errors.New("session start window has elapsed")
	ErrNotEligible     = errors.New("session is not eligible for this operation")
)

// Idempotency and resource errors.
var (
	ErrInvalidNonce     = errors.New("nonce does not match the caller's counter")
	ErrDuplicateSession = errors.New("session id already used")
	ErrAlreadyRefunded  = errors.New("session has already been refunded")
	ErrNothingAvailable = errors.New("no funds available to release")
	ErrNothingToRefund  = errors.New("no funds left to refund")
)
