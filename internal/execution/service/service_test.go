package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"codegrade/internal/common/cache"
	"codegrade/internal/common/storage"
	"codegrade/internal/execution/language"
	"codegrade/internal/execution/model"
	"codegrade/internal/execution/repository"
	"codegrade/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	results []model.TestCaseResult
	err     error
	block   chan struct{} // when set, Dispatch waits until closed
	calls   int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	results := make([]model.TestCaseResult, len(req.TestCases))
	for i := range req.TestCases {
		r := model.TestCaseResult{TestIndex: i, Passed: true}
		if i < len(f.results) {
			r = f.results[i]
		}
		results[i] = r
	}
	return results, nil
}

type fakeStorage struct {
	objects map[string]string
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

func newTestService(t *testing.T, cfg Config, d Dispatcher, store storage.ObjectStorage) *ExecutionService {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	repo := repository.NewStatusRepository(c, time.Hour)
	return NewExecutionService(cfg, language.DefaultRegistry(), d, repo, nil, store)
}

func validRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		Language:   "python",
		SourceCode: "def solve(a, b):\n    return a + b\n",
		TestCases: []model.TestCase{
			{Input: []interface{}{float64(1), float64(2)}, ExpectedOutput: float64(3)},
		},
	}
}

func TestExecuteHappyPath(t *testing.T) {
	d := &fakeDispatcher{}
	s := newTestService(t, Config{}, d, nil)

	summary, err := s.Execute(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !summary.OverallPassed {
		t.Fatalf("expected pass: %+v", summary)
	}
	if summary.SubmissionID == "" {
		t.Fatal("submission id must be assigned")
	}

	record, err := s.GetStatus(context.Background(), summary.SubmissionID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if record.Status != model.StatusFinished {
		t.Fatalf("expected Finished, got %s", record.Status)
	}
	if record.Summary == nil || len(record.Summary.Results) != 1 {
		t.Fatalf("summary not persisted: %+v", record)
	}
}

func TestExecuteUnknownLanguage(t *testing.T) {
	s := newTestService(t, Config{}, &fakeDispatcher{}, nil)

	req := validRequest()
	req.Language = "cobol"
	req.SubmissionID = "sub-lang"
	_, err := s.Execute(context.Background(), req)
	if errors.GetCode(err) != errors.LanguageNotSupported {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}

	record, err := s.GetStatus(context.Background(), "sub-lang")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if record.Status != model.StatusFailed {
		t.Fatalf("validation failure must be recorded as Failed, got %s", record.Status)
	}
}

func TestExecuteNoTestCases(t *testing.T) {
	s := newTestService(t, Config{}, &fakeDispatcher{}, nil)

	req := validRequest()
	req.TestCases = nil
	_, err := s.Execute(context.Background(), req)
	if errors.GetCode(err) != errors.NoTestCases {
		t.Fatalf("expected NoTestCases, got %v", err)
	}
}

func TestExecuteSourceTooLarge(t *testing.T) {
	s := newTestService(t, Config{MaxSourceBytes: 10}, &fakeDispatcher{}, nil)

	_, err := s.Execute(context.Background(), validRequest())
	if errors.GetCode(err) != errors.CodeTooLarge {
		t.Fatalf("expected CodeTooLarge, got %v", err)
	}
}

func TestExecuteResolvesSourceKey(t *testing.T) {
	store := &fakeStorage{objects: map[string]string{
		"sub/main.py": "def solve(a, b):\n    return a + b\n",
	}}
	d := &fakeDispatcher{}
	s := newTestService(t, Config{SourceBucket: "sources"}, d, store)

	req := validRequest()
	req.SourceCode = ""
	req.SourceKey = "sub/main.py"
	summary, err := s.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !summary.OverallPassed {
		t.Fatalf("expected pass: %+v", summary)
	}
}

func TestExecuteMissingSourceKey(t *testing.T) {
	store := &fakeStorage{objects: map[string]string{}}
	s := newTestService(t, Config{}, &fakeDispatcher{}, store)

	req := validRequest()
	req.SourceCode = ""
	req.SourceKey = "nope"
	_, err := s.Execute(context.Background(), req)
	if errors.GetCode(err) != errors.StorageError {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestExecuteDispatchFailureProducesFailureSummary(t *testing.T) {
	d := &fakeDispatcher{err: errors.Newf(errors.ProviderUnavailable, "judge0 is down")}
	s := newTestService(t, Config{}, d, nil)

	req := validRequest()
	req.SubmissionID = "sub-fail"
	summary, err := s.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch failure must still return a summary, got error: %v", err)
	}
	if summary.OverallPassed {
		t.Fatal("failure summary must not pass")
	}
	if summary.ErrorMessage == "" {
		t.Fatal("failure summary must carry the cause")
	}
	if len(summary.Results) != len(req.TestCases) {
		t.Fatalf("failure summary must cover every case, got %d", len(summary.Results))
	}

	record, err := s.GetStatus(context.Background(), "sub-fail")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if record.Status != model.StatusFailed {
		t.Fatalf("expected Failed, got %s", record.Status)
	}
}

func TestExecuteQueueFull(t *testing.T) {
	block := make(chan struct{})
	d := &fakeDispatcher{block: block}
	s := newTestService(t, Config{MaxConcurrentExecutions: 1}, d, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Execute(context.Background(), validRequest())
	}()

	// Wait for the first request to hold the slot.
	deadline := time.After(2 * time.Second)
	for {
		d.mu.Lock()
		calls := d.calls
		d.mu.Unlock()
		if calls == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first request never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := s.Execute(context.Background(), validRequest())
	if errors.GetCode(err) != errors.ExecutionQueueFull {
		t.Fatalf("expected ExecutionQueueFull, got %v", err)
	}

	close(block)
	<-done
}
