// Package dispatcher routes a grading request to an execution backend and
// normalises whatever comes back: results sorted into request order, exactly
// one result per test case.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"
	"codegrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Backend executes all test cases of one request.
type Backend interface {
	Name() string
	RunTests(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error)
}

// Config selects the backend. Backend is a backend name ("local", "judge0",
// "sphere"); empty means local. FallbackLocal reroutes to the local executor
// when the configured remote is missing or fails outright.
type Config struct {
	Backend       string `yaml:"backend"`
	FallbackLocal bool   `yaml:"fallbackLocal"`
}

// Dispatcher owns the registered backends.
type Dispatcher struct {
	cfg     Config
	local   Backend
	remotes map[string]Backend
}

// New builds a dispatcher. local may be nil when only remote grading is
// deployed; remotes may be empty.
func New(cfg Config, local Backend, remotes ...Backend) *Dispatcher {
	m := make(map[string]Backend, len(remotes))
	for _, r := range remotes {
		if r != nil {
			m[strings.ToLower(r.Name())] = r
		}
	}
	return &Dispatcher{cfg: cfg, local: local, remotes: m}
}

// Dispatch runs the request on the selected backend. The returned slice
// always has one result per test case in request order; cases the backend
// never reported are synthesized as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error) {
	backend, err := d.selectBackend(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "dispatching execution",
		zap.String("backend", backend.Name()),
		zap.String("language", req.Language),
		zap.Int("test_cases", len(req.TestCases)))

	results, err := backend.RunTests(ctx, req)
	if err != nil && d.cfg.FallbackLocal && d.local != nil && backend != d.local {
		logger.Warn(ctx, "remote backend failed, falling back to local",
			zap.String("backend", backend.Name()),
			zap.Error(err))
		backend = d.local
		results, err = backend.RunTests(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return normalizeResults(req, results), nil
}

func (d *Dispatcher) selectBackend(ctx context.Context) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(d.cfg.Backend))
	if name == "" || name == "local" {
		if d.local == nil {
			return nil, errors.Newf(errors.NoBackendConfigured, "local executor is not configured")
		}
		return d.local, nil
	}
	if remote, ok := d.remotes[name]; ok {
		return remote, nil
	}
	if d.cfg.FallbackLocal && d.local != nil {
		logger.Warn(ctx, "configured backend missing, falling back to local",
			zap.String("backend", name))
		return d.local, nil
	}
	return nil, errors.Newf(errors.NoBackendConfigured, "backend %q is not configured", name)
}

// normalizeResults restores request order and guarantees one result per case.
func normalizeResults(req model.ExecutionRequest, results []model.TestCaseResult) []model.TestCaseResult {
	n := len(req.TestCases)
	out := make([]model.TestCaseResult, 0, n)
	seen := make(map[int]bool, n)
	for _, r := range results {
		if r.TestIndex < 0 || r.TestIndex >= n || seen[r.TestIndex] {
			continue
		}
		seen[r.TestIndex] = true
		out = append(out, r)
	}
	for i := 0; i < n; i++ {
		if seen[i] {
			continue
		}
		tc := req.TestCases[i]
		msg := fmt.Sprintf("no result produced for test case %d", i)
		out = append(out, model.TestCaseResult{
			TestIndex:      i,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Passed:         false,
			Error:          msg,
			Diagnostic:     model.ComparisonDiagnostic{Kind: model.MatchDifferent, Detail: msg},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestIndex < out[j].TestIndex })
	return out
}
