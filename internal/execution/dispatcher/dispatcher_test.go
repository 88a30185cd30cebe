package dispatcher

import (
	"context"
	"testing"

	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"
)

type fakeBackend struct {
	name    string
	results []model.TestCaseResult
	err     error
	calls   int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) RunTests(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error) {
	f.calls++
	return f.results, f.err
}

func twoCaseRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		Language: "python",
		TestCases: []model.TestCase{
			{Input: float64(1), ExpectedOutput: "1"},
			{Input: float64(2), ExpectedOutput: "2"},
		},
	}
}

func TestDispatchDefaultsToLocal(t *testing.T) {
	local := &fakeBackend{name: "local", results: []model.TestCaseResult{
		{TestIndex: 0, Passed: true},
		{TestIndex: 1, Passed: true},
	}}
	d := New(Config{}, local)

	results, err := d.Dispatch(context.Background(), twoCaseRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if local.calls != 1 {
		t.Fatalf("local backend not called")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestDispatchSelectsNamedRemote(t *testing.T) {
	local := &fakeBackend{name: "local"}
	remote := &fakeBackend{name: "judge0", results: []model.TestCaseResult{
		{TestIndex: 0, Passed: true},
		{TestIndex: 1, Passed: true},
	}}
	d := New(Config{Backend: "judge0"}, local, remote)

	if _, err := d.Dispatch(context.Background(), twoCaseRequest()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if remote.calls != 1 || local.calls != 0 {
		t.Fatalf("expected remote only, got remote=%d local=%d", remote.calls, local.calls)
	}
}

func TestDispatchMissingBackendWithoutFallback(t *testing.T) {
	local := &fakeBackend{name: "local"}
	d := New(Config{Backend: "judge0"}, local)

	_, err := d.Dispatch(context.Background(), twoCaseRequest())
	if errors.GetCode(err) != errors.NoBackendConfigured {
		t.Fatalf("expected NoBackendConfigured, got %v", err)
	}
	if local.calls != 0 {
		t.Fatal("local must not run without fallback enabled")
	}
}

func TestDispatchMissingBackendFallsBackToLocal(t *testing.T) {
	local := &fakeBackend{name: "local", results: []model.TestCaseResult{
		{TestIndex: 0, Passed: true},
		{TestIndex: 1, Passed: true},
	}}
	d := New(Config{Backend: "judge0", FallbackLocal: true}, local)

	if _, err := d.Dispatch(context.Background(), twoCaseRequest()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if local.calls != 1 {
		t.Fatal("expected fallback to local")
	}
}

func TestDispatchRemoteFailureFallsBack(t *testing.T) {
	local := &fakeBackend{name: "local", results: []model.TestCaseResult{
		{TestIndex: 0, Passed: true},
		{TestIndex: 1, Passed: true},
	}}
	remote := &fakeBackend{name: "judge0", err: errors.Newf(errors.ProviderUnavailable, "down")}
	d := New(Config{Backend: "judge0", FallbackLocal: true}, local, remote)

	results, err := d.Dispatch(context.Background(), twoCaseRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if remote.calls != 1 || local.calls != 1 {
		t.Fatalf("expected remote then local, got remote=%d local=%d", remote.calls, local.calls)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestDispatchNormalizesOrderAndCount(t *testing.T) {
	// Backend returns out of order and drops a case.
	local := &fakeBackend{name: "local", results: []model.TestCaseResult{
		{TestIndex: 1, Passed: true},
	}}
	d := New(Config{}, local)

	results, err := d.Dispatch(context.Background(), twoCaseRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected a result per case, got %d", len(results))
	}
	if results[0].TestIndex != 0 || results[1].TestIndex != 1 {
		t.Fatalf("results not in request order: %+v", results)
	}
	if results[0].Passed || results[0].Error == "" {
		t.Fatalf("missing case must be synthesized as failed: %+v", results[0])
	}
	if !results[1].Passed {
		t.Fatalf("reported case must survive normalization: %+v", results[1])
	}
}
