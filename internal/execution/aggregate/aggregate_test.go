package aggregate

import (
	"testing"

	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"
)

func TestSummarizeAllPassed(t *testing.T) {
	s := Summarize("sub-1", []model.TestCaseResult{
		{TestIndex: 0, Passed: true, ExecutionTimeMs: 10, MemoryUsedMB: 5},
		{TestIndex: 1, Passed: true, ExecutionTimeMs: 20, MemoryUsedMB: 12},
	})
	if !s.OverallPassed {
		t.Fatalf("expected overall pass: %+v", s)
	}
	if s.TotalExecutionTimeMs != 30 {
		t.Fatalf("expected total 30ms, got %d", s.TotalExecutionTimeMs)
	}
	if s.PeakMemoryMB != 12 {
		t.Fatalf("expected peak 12MB, got %f", s.PeakMemoryMB)
	}
	if s.SubmissionID != "sub-1" {
		t.Fatalf("submission id lost: %+v", s)
	}
}

func TestSummarizeOneFailureFailsOverall(t *testing.T) {
	s := Summarize("sub-2", []model.TestCaseResult{
		{TestIndex: 0, Passed: true},
		{TestIndex: 1, Passed: false},
	})
	if s.OverallPassed {
		t.Fatal("one failing case must fail the summary")
	}
}

func TestSummarizeEmptyNeverPasses(t *testing.T) {
	s := Summarize("sub-3", nil)
	if s.OverallPassed {
		t.Fatal("empty result set must not pass")
	}
}

func TestFailureSynthesizesResultPerCase(t *testing.T) {
	req := model.ExecutionRequest{
		SubmissionID: "sub-4",
		TestCases: []model.TestCase{
			{Input: float64(1), ExpectedOutput: "1"},
			{Input: float64(2), ExpectedOutput: "2"},
		},
	}
	s := Failure(req, errors.Newf(errors.ProviderUnavailable, "judge0 is down"))
	if s.OverallPassed {
		t.Fatal("failure summary must not pass")
	}
	if len(s.Results) != len(req.TestCases) {
		t.Fatalf("expected %d synthesized results, got %d", len(req.TestCases), len(s.Results))
	}
	if s.ErrorMessage == "" {
		t.Fatal("top-level error message missing")
	}
	for i, r := range s.Results {
		if r.Passed || r.Error == "" || r.TestIndex != i {
			t.Fatalf("bad synthesized result %d: %+v", i, r)
		}
	}
}
