package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrMonitorToken       ErrCode = "MONITOR_TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotExamOwner      ErrCode = "NOT_EXAM_OWNER"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"
	ErrNotEnrolled       ErrCode = "NOT_ENROLLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation        ErrCode = "VALIDATION_ERROR"
	ErrInvalidID         ErrCode = "INVALID_ID"
	ErrInvalidPayload    ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer     ErrCode = "INVALID_ANSWER"
	ErrInvalidQuestion   ErrCode = "INVALID_QUESTION"
	ErrQuestionNotInExam ErrCode = "QUESTION_NOT_IN_EXAM"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrAttemptNotFound  ErrCode = "ATTEMPT_NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrExamNotAvailable     ErrCode = "EXAM_NOT_AVAILABLE"
	ErrDeadlinePassed       ErrCode = "DEADLINE_PASSED"
	ErrAttemptExists        ErrCode = "ATTEMPT_ALREADY_IN_PROGRESS"
	ErrAttemptNotInProgress ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrAttemptInProgress    ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrTimeLimitExceeded    ErrCode = "TIME_LIMIT_EXCEEDED"
	ErrAttemptLimitReached  ErrCode = "ATTEMPT_LIMIT_REACHED"
	ErrAttemptNotGraded     ErrCode = "ATTEMPT_NOT_GRADED"
	ErrInvalidState         ErrCode = "INVALID_STATE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrMonitorToken:
		return "Monitor token is missing or invalid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrNotExamOwner:
		return "You do not own this exam."
	case ErrNotAttemptOwner:
		return "This attempt belongs to another user."
	case ErrNotEnrolled:
		return "You are not enrolled in a class assigned to this exam."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "The answer does not match the question type."
	case ErrInvalidQuestion:
		return "The question definition is inconsistent."
	case ErrQuestionNotInExam:
		return "The question does not belong to this attempt's exam."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrQuestionNotFound:
		return "Question not found."
	case ErrAttemptNotFound:
		return "Attempt not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrDeadlinePassed:
		return "The deadline for this exam has passed."
	case ErrAttemptExists:
		return "You already have an attempt in progress for this exam."
	case ErrAttemptNotInProgress:
		return "This attempt has already been submitted."
	case ErrAttemptInProgress:
		return "This attempt is still in progress."
	case ErrTimeLimitExceeded:
		return "The time limit for this attempt has been exceeded."
	case ErrAttemptLimitReached:
		return "You have already taken this exam."
	case ErrAttemptNotGraded:
		return "This attempt has not been graded yet."
	case ErrInvalidState:
		return "The operation is not valid for the attempt's current state."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}
