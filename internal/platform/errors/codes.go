// Package errors provides structured error handling with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Post errors
	CodePostContentEmpty   Code = "POST_CONTENT_EMPTY"
	CodePostInvalidFormat  Code = "POST_INVALID_FORMAT"
	CodePostAlreadyDeleted Code = "POST_ALREADY_DELETED"

	// Schedule errors
	CodeScheduleInvalidStatus     Code = "SCHEDULE_INVALID_STATUS"
	CodeScheduleInvalidTransition Code = "SCHEDULE_INVALID_TRANSITION"
	CodeScheduleClaimLost         Code = "SCHEDULE_CLAIM_LOST"

	// Config errors
	CodeConfigUnknownDomain Code = "CONFIG_UNKNOWN_DOMAIN"
	CodeConfigInvalid       Code = "CONFIG_INVALID"

	// Budget errors
	CodeBudgetUnknownModel Code = "BUDGET_UNKNOWN_MODEL"
	CodeBudgetExhausted    Code = "BUDGET_EXHAUSTED"
	CodeBudgetInvalidSpend Code = "BUDGET_INVALID_SPEND"

	// Lock errors
	CodeLockHeld            Code = "LOCK_HELD"
	CodeLockFencingMismatch Code = "LOCK_FENCING_MISMATCH"
	CodeLockExpired         Code = "LOCK_EXPIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)
