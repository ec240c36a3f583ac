package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrIdentityMismatch   ErrCode = "IDENTITY_MISMATCH"
	ErrExamCompleted      ErrCode = "EXAM_ALREADY_COMPLETED"
	ErrExamNotCompleted   ErrCode = "EXAM_NOT_COMPLETED"
	ErrStreamActive       ErrCode = "STREAM_ALREADY_ACTIVE"
	ErrIncompleteAnswers  ErrCode = "INCOMPLETE_ANSWERS"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrSubmissionBanned   ErrCode = "SUBMISSION_BANNED"
	ErrSubmissionNotFound ErrCode = "SUBMISSION_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal           ErrCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

var messages = map[ErrCode]string{
	ErrInvalidCredentials: "Invalid username or password.",
	ErrSessionActive:      "An exam attempt is already active for this admission number.",
	ErrSessionInvalidated: "Your session has ended. Please start again.",
	ErrTokenRequired:      "Authentication token is required.",
	ErrTokenInvalid:       "Authentication token is invalid.",
	ErrTokenExpired:       "Authentication token has expired.",

	ErrForbidden:           "You do not have permission to access this resource.",
	ErrCandidateAccessOnly: "This resource is restricted to exam candidates.",
	ErrAdminAccessOnly:     "This resource is restricted to administrators.",

	ErrValidation:     "Validation failed. Please check your input.",
	ErrInvalidID:      "Invalid ID format.",
	ErrInvalidPayload: "Invalid request payload.",

	ErrNotFound: "Resource not found.",
	ErrConflict: "Resource already exists.",

	ErrNoQuestions:        "No questions are available for this exam.",
	ErrIdentityMismatch:   "Submission identity does not match the signed-in candidate.",
	ErrExamCompleted:      "This exam has already been submitted.",
	ErrExamNotCompleted:   "Results are available after the exam is submitted.",
	ErrStreamActive:       "The exam is already open in another window.",
	ErrIncompleteAnswers:  "Please answer all questions before submitting.",
	ErrSessionClosed:      "The exam session is closed.",
	ErrSubmissionBanned:   "Banned submissions are not graded.",
	ErrSubmissionNotFound: "Submission not found.",

	ErrRateLimitExceeded: "Too many requests. Please try again later.",

	ErrInternal:           "An internal server error occurred.",
	ErrServiceUnavailable: "The service is temporarily unavailable.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
