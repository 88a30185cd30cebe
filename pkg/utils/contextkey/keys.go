package contextkey

type contextKey string

const (
	// TraceID identifies one request across services.
	TraceID contextKey = "trace_id"
	// RequestID identifies one HTTP request.
	RequestID contextKey = "request_id"
	// SubmissionID identifies one grading submission.
	SubmissionID contextKey = "submission_id"
)
