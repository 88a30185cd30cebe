package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Language & Request errors
// 21000-21999: Execution errors
// 22000-22999: Remote provider errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10004
	Timeout             ErrorCode = 10005

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Storage errors (10250-10299)
	StorageError ErrorCode = 10250

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Language & Request Errors (20000-20999) ==========

	LanguageNotSupported ErrorCode = 20000
	NoTestCases          ErrorCode = 20001
	CodeTooLarge         ErrorCode = 20002
	NoBackendConfigured  ErrorCode = 20003

	// ========== Execution Errors (21000-21999) ==========

	ExecutionQueueFull  ErrorCode = 21000
	SandboxError        ErrorCode = 21001
	CompilationError    ErrorCode = 21002
	RuntimeError        ErrorCode = 21003
	TimeLimitExceeded   ErrorCode = 21004
	MemoryLimitExceeded ErrorCode = 21005

	// ========== Remote Provider Errors (22000-22999) ==========

	ProviderNotConfigured     ErrorCode = 22000
	ProviderUnavailable       ErrorCode = 22001
	MalformedProviderResponse ErrorCode = 22002
	ProviderPollTimeout       ErrorCode = 22003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache & Storage
	CacheError:   "Cache operation failed",
	StorageError: "Object storage operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Language & Request
	LanguageNotSupported: "Programming language not supported",
	NoTestCases:          "No test cases provided",
	CodeTooLarge:         "Source code is too large",
	NoBackendConfigured:  "No execution backend configured",

	// Execution
	ExecutionQueueFull:  "Execution queue is full, please try again later",
	SandboxError:        "Sandbox execution error",
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",

	// Remote providers
	ProviderNotConfigured:     "Remote judge provider is not configured",
	ProviderUnavailable:       "Remote judge provider is unavailable",
	MalformedProviderResponse: "Remote judge provider returned a malformed response",
	ProviderPollTimeout:       "No result received from remote judge provider",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound:
		return 404
	case c == InvalidParams, c == LanguageNotSupported, c == NoTestCases, c == CodeTooLarge:
		return 400
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == ExecutionQueueFull:
		return 429
	case c == ServiceUnavailable, c == ProviderUnavailable:
		return 503
	default:
		return 500
	}
}
