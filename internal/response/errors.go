package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrSessionNotActive   ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionExpired     ErrCode = "SESSION_EXPIRED"
	ErrSubmissionInFlight ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"
	ErrInvalidCursor      ErrCode = "INVALID_CURSOR"
	ErrReviewNotFound     ErrCode = "REVIEW_NOT_FOUND"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"
	ErrBackendRejected    ErrCode = "BACKEND_REJECTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "No exam session is in progress."
	case ErrSessionNotActive:
		return "This exam session has already ended."
	case ErrSessionExpired:
		return "Exam time is over."
	case ErrSubmissionInFlight:
		return "The exam is already being submitted."
	case ErrInvalidAnswer:
		return "A question id and an answer are required."
	case ErrInvalidCursor:
		return "Question index is out of range."
	case ErrReviewNotFound:
		return "No review is available for this exam."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrBackendUnavailable:
		return "The exam service is unavailable. Please try again."
	case ErrBackendRejected:
		return "The exam service rejected the request."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
