// Package aggregate folds per-case results into the canonical execution
// summary.
package aggregate

import (
	"codegrade/internal/execution/model"
)

// Summarize builds the summary for a completed batch. Overall pass requires
// every case to pass; an empty batch never passes. Total time is the sum of
// per-case times and peak memory is the maximum across cases.
func Summarize(submissionID string, results []model.TestCaseResult) model.ExecutionSummary {
	summary := model.ExecutionSummary{
		SubmissionID:  submissionID,
		OverallPassed: len(results) > 0,
		Results:       results,
	}
	for _, r := range results {
		if !r.Passed {
			summary.OverallPassed = false
		}
		summary.TotalExecutionTimeMs += r.ExecutionTimeMs
		if r.MemoryUsedMB > summary.PeakMemoryMB {
			summary.PeakMemoryMB = r.MemoryUsedMB
		}
	}
	return summary
}

// Failure builds the summary for a request that failed before producing
// results. One failed result is synthesized per test case so consumers can
// still rely on a result per case, and the top-level error message carries
// the cause.
func Failure(req model.ExecutionRequest, err error) model.ExecutionSummary {
	msg := "execution failed"
	if err != nil {
		msg = err.Error()
	}
	results := make([]model.TestCaseResult, len(req.TestCases))
	for i, tc := range req.TestCases {
		results[i] = model.TestCaseResult{
			TestIndex:      i,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Passed:         false,
			Error:          msg,
			Diagnostic:     model.ComparisonDiagnostic{Kind: model.MatchDifferent, Detail: msg},
		}
	}
	return model.ExecutionSummary{
		SubmissionID:  req.SubmissionID,
		OverallPassed: false,
		Results:       results,
		ErrorMessage:  msg,
	}
}
