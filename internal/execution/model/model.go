// Package model defines the data types shared by the execution engine.
package model

// Value is one structured test case value: a scalar, string, array or map.
// It must round-trip through JSON when passed to child processes.
type Value = interface{}

// TestCase is one (input, expected output) pair a submission is graded against.
type TestCase struct {
	Input          Value `json:"input"`
	ExpectedOutput Value `json:"output"`
}

// ExecutionRequest contains all data needed to grade one submission.
// It is constructed once per grading call and never mutated by the engine.
type ExecutionRequest struct {
	SubmissionID string     `json:"submission_id"`
	Language     string     `json:"language"`
	SourceCode   string     `json:"source_code"`
	TestCases    []TestCase `json:"test_cases"`

	// SourceKey optionally names an object-storage key holding the source
	// when SourceCode is empty.
	SourceKey string `json:"source_key,omitempty"`

	// EntryPoint optionally names the function the harness should invoke,
	// overriding entry point detection.
	EntryPoint string `json:"entry_point,omitempty"`

	TimeLimitMs   int64 `json:"time_limit_ms,omitempty"`
	MemoryLimitMB int64 `json:"memory_limit_mb,omitempty"`
}

// MatchKind tags how a comparison matched, or that it did not.
type MatchKind string

const (
	MatchExact                 MatchKind = "Exact"
	MatchNumeric               MatchKind = "Numeric"
	MatchInteger               MatchKind = "Integer"
	MatchJSONStructural        MatchKind = "JsonStructural"
	MatchWhitespaceInsensitive MatchKind = "WhitespaceInsensitive"
	MatchCaseInsensitive       MatchKind = "CaseInsensitive"
	MatchTrailingNewline       MatchKind = "TrailingNewline"
	MatchDifferent             MatchKind = "Different"
)

// LineDiff pinpoints the first differing line between expected and actual output.
type LineDiff struct {
	// FirstDiffLine is 1-based; 0 when only the line counts differ.
	FirstDiffLine int    `json:"first_diff_line"`
	ExpectedLine  string `json:"expected_line,omitempty"`
	ActualLine    string `json:"actual_line,omitempty"`
	// ExtraLines counts trailing lines present in actual but not expected.
	ExtraLines int `json:"extra_lines,omitempty"`
	// MissingLines counts trailing lines present in expected but not actual.
	MissingLines int `json:"missing_lines,omitempty"`
}

// ComparisonDiagnostic explains why a comparison matched or did not.
// It never affects the pass/fail decision once made, only explains it.
type ComparisonDiagnostic struct {
	Kind    MatchKind `json:"kind"`
	Matched bool      `json:"matched"`
	Detail  string    `json:"detail,omitempty"`
	Diff    *LineDiff `json:"diff,omitempty"`
}

// TestCaseResult is the verdict for one test case. Produced exactly once per
// test case; never retried automatically within a single request.
type TestCaseResult struct {
	TestIndex       int                  `json:"test_index"`
	Input           Value                `json:"input"`
	ExpectedOutput  Value                `json:"expected_output"`
	ActualOutput    string               `json:"actual_output"`
	Passed          bool                 `json:"passed"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
	MemoryUsedMB    float64              `json:"memory_used_mb"`
	Error           string               `json:"error,omitempty"`
	Diagnostic      ComparisonDiagnostic `json:"diagnostic"`
}

// ExecutionSummary is the canonical result of one grading request.
// Invariant: len(Results) equals the request's test case count, even on
// total failure.
type ExecutionSummary struct {
	SubmissionID         string           `json:"submission_id"`
	OverallPassed        bool             `json:"overall_passed"`
	Results              []TestCaseResult `json:"results"`
	TotalExecutionTimeMs int64            `json:"total_execution_time_ms"`
	PeakMemoryMB         float64          `json:"peak_memory_mb"`
	ErrorMessage         string           `json:"error_message,omitempty"`
}

// ExecutionStatus represents the lifecycle state of a grading request.
type ExecutionStatus string

const (
	StatusPending  ExecutionStatus = "Pending"
	StatusRunning  ExecutionStatus = "Running"
	StatusFinished ExecutionStatus = "Finished"
	StatusFailed   ExecutionStatus = "Failed"
)

// Timestamps captures request lifecycle timestamps (unix seconds).
type Timestamps struct {
	ReceivedAt int64 `json:"received_at"`
	FinishedAt int64 `json:"finished_at,omitempty"`
}

// ExecutionStatusRecord is the persisted view of one grading request.
type ExecutionStatusRecord struct {
	SubmissionID string            `json:"submission_id"`
	Status       ExecutionStatus   `json:"status"`
	Language     string            `json:"language,omitempty"`
	Summary      *ExecutionSummary `json:"summary,omitempty"`
	ErrorCode    int               `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Timestamps   Timestamps        `json:"timestamps"`
}
