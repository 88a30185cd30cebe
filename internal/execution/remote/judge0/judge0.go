// Package judge0 grades submissions through a Judge0-compatible API:
// batch submission, token-based polling, base64-encoded payloads.
package judge0

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codegrade/internal/execution/grader"
	"codegrade/internal/execution/model"
	"codegrade/internal/execution/remote"
	"codegrade/pkg/errors"
	"codegrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Judge0 status ids. 1 and 2 are non-terminal.
const (
	statusInQueue          = 1
	statusProcessing       = 2
	statusAccepted         = 3
	statusWrongAnswer      = 4
	statusTimeLimit        = 5
	statusCompilationError = 6
	statusInternalError    = 13
	statusExecFormatError  = 14
)

// Config holds the Judge0 connection settings. BaseURL and APIKey are
// required; Languages maps registry language IDs to Judge0 language ids.
type Config struct {
	BaseURL     string            `yaml:"baseURL"`
	APIKey      string            `yaml:"apiKey"`
	AuthHeader  string            `yaml:"authHeader"`
	Languages   map[string]int    `yaml:"languages"`
	Poll        remote.PollConfig `yaml:"poll"`
	HTTPTimeout time.Duration     `yaml:"httpTimeout"`
}

// Client talks to one Judge0 deployment.
type Client struct {
	cfg  Config
	http *http.Client
}

// New validates the config and builds a client. Missing endpoint or
// credentials fail fast so a half-configured provider is never selected.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Newf(errors.ProviderNotConfigured, "judge0 base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.Newf(errors.ProviderNotConfigured, "judge0 api key is required")
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "X-Auth-Token"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = defaultLanguageIDs()
	}
	cfg.Poll.Normalize()
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// defaultLanguageIDs covers the registry's built-in languages on the public
// Judge0 CE language table.
func defaultLanguageIDs() map[string]int {
	return map[string]int{
		"python":     71,
		"javascript": 63,
		"java":       62,
		"cpp":        54,
		"c":          50,
		"go":         60,
	}
}

func (c *Client) Name() string { return "judge0" }

type batchSubmission struct {
	LanguageID     int     `json:"language_id"`
	SourceCode     string  `json:"source_code"`
	Stdin          string  `json:"stdin"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimitKB  int64   `json:"memory_limit,omitempty"`
	WallTimeLimit  float64 `json:"wall_time_limit,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type submissionStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionResult struct {
	Token         string           `json:"token"`
	Stdin         string           `json:"stdin"`
	Stdout        string           `json:"stdout"`
	Stderr        string           `json:"stderr"`
	CompileOutput string           `json:"compile_output"`
	Message       string           `json:"message"`
	Status        submissionStatus `json:"status"`
	Time          string           `json:"time"`
	MemoryKB      float64          `json:"memory"`
}

// RunTests submits every case as one batch, polls each token until terminal,
// and grades echoed outputs locally.
func (c *Client) RunTests(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error) {
	langID, ok := c.cfg.Languages[req.Language]
	if !ok {
		return nil, errors.Newf(errors.LanguageNotSupported,
			"judge0 has no language id for %q", req.Language)
	}

	tokens, err := c.submitBatch(ctx, langID, req)
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(req.TestCases) {
		return nil, errors.Newf(errors.MalformedProviderResponse,
			"judge0 returned %d tokens for %d submissions", len(tokens), len(req.TestCases))
	}

	finished := make(map[string]*submissionResult, len(tokens))
	err = remote.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (bool, error) {
		pending := 0
		for _, token := range tokens {
			if _, done := finished[token]; done {
				continue
			}
			res, err := c.getSubmission(ctx, token)
			if err != nil {
				return false, err
			}
			if res.Status.ID <= statusProcessing {
				pending++
				continue
			}
			finished[token] = res
		}
		return pending == 0, nil
	})

	results := make([]model.TestCaseResult, len(req.TestCases))
	mapping := c.matchTokens(ctx, req, tokens, finished)
	for itemIdx, token := range tokens {
		caseIdx := mapping[itemIdx]
		tc := req.TestCases[caseIdx]
		res, done := finished[token]
		if !done {
			results[caseIdx] = remote.FailureResult(caseIdx, tc, remote.CategoryInternal,
				fmt.Sprintf("still pending after polling: %v", err))
			continue
		}
		results[caseIdx] = c.gradeItem(ctx, caseIdx, tc, res)
	}
	if err != nil && errors.GetCode(err) != errors.ProviderPollTimeout {
		return nil, err
	}
	return results, nil
}

func (c *Client) submitBatch(ctx context.Context, langID int, req model.ExecutionRequest) ([]string, error) {
	subs := make([]batchSubmission, len(req.TestCases))
	for i, tc := range req.TestCases {
		subs[i] = batchSubmission{
			LanguageID:    langID,
			SourceCode:    base64.StdEncoding.EncodeToString([]byte(req.SourceCode)),
			Stdin:         base64.StdEncoding.EncodeToString([]byte(remote.EncodeStdin(tc.Input))),
			CPUTimeLimit:  float64(req.TimeLimitMs) / 1000.0,
			MemoryLimitKB: req.MemoryLimitMB * 1024,
		}
	}
	payload, err := json.Marshal(map[string]interface{}{"submissions": subs})
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalServerError, "marshal batch failed")
	}

	u := c.cfg.BaseURL + "/submissions/batch?base64_encoded=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ProviderUnavailable, "build batch request failed")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(c.cfg.AuthHeader, c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ProviderUnavailable, "submit batch failed")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ProviderUnavailable,
			"judge0 batch submit returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokens []tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, errors.Wrapf(err, errors.MalformedProviderResponse, "decode batch tokens failed")
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if t.Token == "" {
			return nil, errors.Newf(errors.MalformedProviderResponse, "empty token at position %d", i)
		}
		out[i] = t.Token
	}
	return out, nil
}

func (c *Client) getSubmission(ctx context.Context, token string) (*submissionResult, error) {
	u := fmt.Sprintf("%s/submissions/%s?base64_encoded=true&fields=%s",
		c.cfg.BaseURL, url.PathEscape(token),
		url.QueryEscape("token,stdin,stdout,stderr,compile_output,message,status,time,memory"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ProviderUnavailable, "build poll request failed")
	}
	httpReq.Header.Set(c.cfg.AuthHeader, c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ProviderUnavailable, "poll submission failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ProviderUnavailable,
			"judge0 poll returned status %d", resp.StatusCode)
	}

	var res submissionResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errors.Wrapf(err, errors.MalformedProviderResponse, "decode submission failed")
	}
	res.Token = token
	res.Stdin = decodeB64(res.Stdin)
	res.Stdout = decodeB64(res.Stdout)
	res.Stderr = decodeB64(res.Stderr)
	res.CompileOutput = decodeB64(res.CompileOutput)
	return &res, nil
}

// matchTokens maps batch positions back to case indices via echoed stdin,
// with positional fallback. Judge0 preserves batch order, but the echoed
// stdin check also catches a reordered or partial response.
func (c *Client) matchTokens(ctx context.Context, req model.ExecutionRequest, tokens []string, finished map[string]*submissionResult) []int {
	echoed := make([]string, len(tokens))
	for i, token := range tokens {
		if res, ok := finished[token]; ok {
			echoed[i] = res.Stdin
		}
	}
	return remote.MatchByStdin(ctx, req.TestCases, echoed)
}

func (c *Client) gradeItem(ctx context.Context, idx int, tc model.TestCase, res *submissionResult) model.TestCaseResult {
	switch {
	case res.Status.ID == statusCompilationError:
		return withMetrics(remote.FailureResult(idx, tc, remote.CategoryCompileError, res.CompileOutput), res)
	case res.Status.ID == statusTimeLimit:
		return withMetrics(remote.FailureResult(idx, tc, remote.CategoryTimeLimit, ""), res)
	case res.Status.ID > statusCompilationError && res.Status.ID < statusInternalError:
		detail := res.Stderr
		if detail == "" {
			detail = res.Status.Description
		}
		return withMetrics(remote.FailureResult(idx, tc, remote.CategoryRuntimeError, detail), res)
	case res.Status.ID >= statusInternalError:
		logger.Warn(ctx, "judge0 internal failure",
			zap.String("token", res.Token),
			zap.String("status", res.Status.Description))
		return withMetrics(remote.FailureResult(idx, tc, remote.CategoryInternal, res.Status.Description), res)
	}

	// Accepted or Wrong Answer: grade the content ourselves rather than
	// trusting the provider's expected-output comparison.
	actual := trimOutput(res.Stdout)
	diag := grader.Compare(actual, tc.ExpectedOutput)
	return model.TestCaseResult{
		TestIndex:       idx,
		Input:           tc.Input,
		ExpectedOutput:  tc.ExpectedOutput,
		ActualOutput:    actual,
		Passed:          diag.Matched,
		ExecutionTimeMs: remote.SecondsToMs(res.Time),
		MemoryUsedMB:    remote.KBToMB(res.MemoryKB),
		Diagnostic:      diag,
	}
}

func withMetrics(r model.TestCaseResult, res *submissionResult) model.TestCaseResult {
	r.ExecutionTimeMs = remote.SecondsToMs(res.Time)
	r.MemoryUsedMB = remote.KBToMB(res.MemoryKB)
	r.ActualOutput = trimOutput(res.Stdout)
	return r
}

func decodeB64(s string) string {
	if s == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(raw)
}

func trimOutput(s string) string {
	return strings.TrimSpace(s)
}
