package sandbox

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"

	"codegrade/internal/execution/language"
	"codegrade/internal/execution/model"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	workRoot := t.TempDir()
	e := NewExecutor(Config{WorkRoot: workRoot, Concurrency: 2}, language.DefaultRegistry())
	return e, workRoot
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func TestRunTestsPython(t *testing.T) {
	requireBinary(t, "python3")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-1",
		Language:     "python",
		SourceCode:   "def solve(a, b):\n    return a + b\n",
		TestCases: []model.TestCase{
			{Input: []interface{}{float64(1), float64(2)}, ExpectedOutput: float64(3)},
			{Input: []interface{}{float64(5), float64(7)}, ExpectedOutput: float64(12)},
		},
		TimeLimitMs: 10000,
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if r.TestIndex != i {
			t.Errorf("result %d has index %d", i, r.TestIndex)
		}
		if !r.Passed {
			t.Errorf("case %d failed: %+v", i, r)
		}
	}
}

func TestRunTestsPythonListFallback(t *testing.T) {
	requireBinary(t, "python3")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-2",
		Language:     "python",
		SourceCode:   "def solve(numbers):\n    return sum(numbers)\n",
		TestCases: []model.TestCase{
			{Input: []interface{}{float64(1), float64(2), float64(3), float64(4), float64(5)}, ExpectedOutput: float64(15)},
		},
		TimeLimitMs: 10000,
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	if !results[0].Passed {
		t.Fatalf("list fallback case failed: %+v", results[0])
	}
	if results[0].ActualOutput != "15" {
		t.Fatalf("expected actual output 15, got %q", results[0].ActualOutput)
	}
}

func TestRunTestsEmptyListInput(t *testing.T) {
	requireBinary(t, "python3")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-3",
		Language:     "python",
		SourceCode:   "def solve(items):\n    return len(items)\n",
		TestCases: []model.TestCase{
			{Input: []interface{}{}, ExpectedOutput: "0"},
		},
		TimeLimitMs: 10000,
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	if !results[0].Passed {
		t.Fatalf("empty list case failed: %+v", results[0])
	}
}

func TestRunTestsExplicitEntryPoint(t *testing.T) {
	requireBinary(t, "python3")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-4",
		Language:     "python",
		SourceCode:   "def add_one(x):\n    return x + 1\n",
		EntryPoint:   "add_one",
		TestCases: []model.TestCase{
			{Input: float64(41), ExpectedOutput: float64(42)},
		},
		TimeLimitMs: 10000,
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	if !results[0].Passed {
		t.Fatalf("explicit entry point case failed: %+v", results[0])
	}
}

func TestRunTestsTimeLimit(t *testing.T) {
	requireBinary(t, "python3")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-5",
		Language:     "python",
		SourceCode:   "def solve():\n    while True:\n        pass\n",
		TestCases: []model.TestCase{
			{Input: nil, ExpectedOutput: "never"},
		},
		TimeLimitMs: 300,
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	r := results[0]
	if r.Passed {
		t.Fatalf("infinite loop must not pass: %+v", r)
	}
	if !strings.Contains(r.Error, "Time Limit Exceeded") {
		t.Fatalf("expected time limit error, got %q", r.Error)
	}
}

func TestRunTestsRuntimeError(t *testing.T) {
	requireBinary(t, "python3")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-6",
		Language:     "python",
		SourceCode:   "def solve():\n    raise ValueError(\"boom\")\n",
		TestCases: []model.TestCase{
			{Input: nil, ExpectedOutput: "x"},
		},
		TimeLimitMs: 10000,
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	r := results[0]
	if r.Passed {
		t.Fatalf("raising solution must not pass: %+v", r)
	}
	if !strings.Contains(r.Error, "Runtime Error") || !strings.Contains(r.Error, "boom") {
		t.Fatalf("expected runtime error with stderr, got %q", r.Error)
	}
}

func TestCompileFailureShortCircuits(t *testing.T) {
	requireBinary(t, "gcc")
	e, _ := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-7",
		Language:     "c",
		SourceCode:   "int main( { return 0; }\n",
		TestCases: []model.TestCase{
			{Input: float64(1), ExpectedOutput: "1"},
			{Input: float64(2), ExpectedOutput: "2"},
		},
	}

	results, err := e.RunTests(context.Background(), req)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected a result per test case, got %d", len(results))
	}
	for i, r := range results {
		if r.Passed {
			t.Errorf("case %d passed despite compile error", i)
		}
		if !strings.Contains(r.Error, "Compilation Error") {
			t.Errorf("case %d missing compilation error, got %q", i, r.Error)
		}
		if r.ExecutionTimeMs != 0 {
			t.Errorf("case %d ran despite compile error", i)
		}
	}
}

func TestRunTestsCleansWorkDir(t *testing.T) {
	requireBinary(t, "python3")
	e, workRoot := newTestExecutor(t)

	req := model.ExecutionRequest{
		SubmissionID: "sub-8",
		Language:     "python",
		SourceCode:   "def solve():\n    return 1\n",
		TestCases:    []model.TestCase{{Input: nil, ExpectedOutput: float64(1)}},
		TimeLimitMs:  10000,
	}

	if _, err := e.RunTests(context.Background(), req); err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}

	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work root not cleaned, %d entries remain", len(entries))
	}
}

func TestRunTestsUnknownLanguage(t *testing.T) {
	e, _ := newTestExecutor(t)
	_, err := e.RunTests(context.Background(), model.ExecutionRequest{
		Language:  "cobol",
		TestCases: []model.TestCase{{Input: nil, ExpectedOutput: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown language")
	}
}
