// Package remote contains the shared machinery for grading through hosted
// judge providers: bounded polling, URL-valued field resolution, echoed-input
// matching, and canonical failure categories.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"
	"codegrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Client is one remote judge provider.
type Client interface {
	Name() string
	RunTests(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error)
}

// PollConfig bounds the wait for a provider to finish: a fixed interval
// between polls and a hard attempt ceiling. No exponential backoff.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// Normalize fills zero fields with defaults.
func (p *PollConfig) Normalize() {
	if p.Interval <= 0 {
		p.Interval = 500 * time.Millisecond
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 20
	}
}

// Poll invokes check until it reports done, an error occurs, the context is
// cancelled, or attempts run out. Running out of attempts is a
// ProviderPollTimeout error.
func Poll(ctx context.Context, cfg PollConfig, check func(ctx context.Context) (bool, error)) error {
	cfg.Normalize()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), errors.Timeout, "polling cancelled")
		case <-time.After(cfg.Interval):
		}
	}
	return errors.Newf(errors.ProviderPollTimeout,
		"provider did not finish within %d polls", cfg.MaxAttempts)
}

const maxFetchBytes = 1 << 20

// FetchText resolves a possibly URL-valued field. Some providers return a
// download URL for large output streams instead of inline content; anything
// that is not an http(s) URL is returned as-is.
func FetchText(ctx context.Context, client *http.Client, field string) (string, error) {
	trimmed := strings.TrimSpace(field)
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return field, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", errors.Wrapf(err, errors.MalformedProviderResponse, "invalid stream url")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, errors.ProviderUnavailable, "fetch stream failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ProviderUnavailable, "fetch stream failed: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", errors.Wrapf(err, errors.ProviderUnavailable, "read stream failed")
	}
	return string(body), nil
}

// EncodeStdin serialises a test case input the way every backend puts it on
// the child's stdin, so echoed stdin can be matched back to its case.
func EncodeStdin(input model.Value) string {
	if input == nil {
		return ""
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(raw)
}

// MatchByStdin pairs provider items back to request cases using the stdin
// each item echoes. Items whose stdin is ambiguous or unknown fall back to
// positional order. Duplicate inputs in the request get a warning, since
// content matching cannot distinguish them.
//
// The returned slice maps item index to case index.
func MatchByStdin(ctx context.Context, cases []model.TestCase, echoed []string) []int {
	byInput := make(map[string][]int, len(cases))
	for i, tc := range cases {
		key := strings.TrimSpace(EncodeStdin(tc.Input))
		byInput[key] = append(byInput[key], i)
	}
	for key, idxs := range byInput {
		if len(idxs) > 1 {
			logger.Warn(ctx, "duplicate test case inputs; falling back to positional matching for them",
				zap.String("input", key),
				zap.Int("count", len(idxs)))
		}
	}

	mapping := make([]int, len(echoed))
	used := make([]bool, len(cases))
	for i := range mapping {
		mapping[i] = -1
	}
	for i, s := range echoed {
		key := strings.TrimSpace(s)
		for _, idx := range byInput[key] {
			if !used[idx] {
				mapping[i] = idx
				used[idx] = true
				break
			}
		}
	}
	// Positional fallback for anything unmatched.
	for i, m := range mapping {
		if m != -1 {
			continue
		}
		for j := range used {
			if !used[j] {
				mapping[i] = j
				used[j] = true
				break
			}
		}
	}
	return mapping
}

// Category is the canonical failure classification shared by all providers.
type Category int

const (
	CategoryOK Category = iota
	CategoryCompileError
	CategoryRuntimeError
	CategoryTimeLimit
	CategoryMemoryLimit
	CategoryInternal
)

// FailureResult builds a failed result for one case in a provider's batch.
func FailureResult(idx int, tc model.TestCase, category Category, detail string) model.TestCaseResult {
	var msg string
	switch category {
	case CategoryCompileError:
		msg = "Compilation Error"
	case CategoryRuntimeError:
		msg = "Runtime Error"
	case CategoryTimeLimit:
		msg = "Time Limit Exceeded"
	case CategoryMemoryLimit:
		msg = "Memory Limit Exceeded"
	default:
		msg = "Provider Error"
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + detail
	}
	return model.TestCaseResult{
		TestIndex:      idx,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Passed:         false,
		Error:          msg,
		Diagnostic:     model.ComparisonDiagnostic{Kind: model.MatchDifferent, Detail: msg},
	}
}

// SecondsToMs converts a provider's fractional-seconds time field.
func SecondsToMs(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(f * 1000)
}

// KBToMB converts a provider's kilobyte memory field.
func KBToMB(kb float64) float64 {
	if kb <= 0 {
		return 0
	}
	return kb / 1024.0
}
