// Package sphere grades submissions through a Sphere Engine-style API.
// Unlike the batch judge0 flow, each test case is its own submission, and
// output streams come back as either inline content or a download URL.
package sphere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"codegrade/internal/execution/grader"
	"codegrade/internal/execution/model"
	"codegrade/internal/execution/remote"
	"codegrade/pkg/errors"
	"codegrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Sphere Engine result status codes.
const (
	statusAccepted     = 15
	statusWrongAnswer  = 14
	statusTimeLimit    = 13
	statusRuntimeError = 12
	statusCompileError = 11
	statusMemoryLimit  = 17 // extension used by some deployments
)

// Config holds the Sphere Engine connection settings. The access token is
// passed as a query parameter, which is how this API authenticates.
type Config struct {
	BaseURL     string            `yaml:"baseURL"`
	AccessToken string            `yaml:"accessToken"`
	Compilers   map[string]int    `yaml:"compilers"`
	Poll        remote.PollConfig `yaml:"poll"`
	HTTPTimeout time.Duration     `yaml:"httpTimeout"`

	// Concurrency bounds parallel per-case submissions.
	Concurrency int `yaml:"concurrency"`
}

// Client talks to one Sphere Engine deployment.
type Client struct {
	cfg  Config
	http *http.Client
}

// New validates the config and builds a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Newf(errors.ProviderNotConfigured, "sphere base url is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.Newf(errors.ProviderNotConfigured, "sphere access token is required")
	}
	if len(cfg.Compilers) == 0 {
		cfg.Compilers = defaultCompilerIDs()
	}
	cfg.Poll.Normalize()
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

func defaultCompilerIDs() map[string]int {
	return map[string]int{
		"python":     116,
		"javascript": 112,
		"java":       10,
		"cpp":        41,
		"c":          11,
		"go":         114,
	}
}

func (c *Client) Name() string { return "sphere" }

type createResponse struct {
	ID int64 `json:"id"`
}

type stream struct {
	Content string `json:"content"`
	URI     string `json:"uri"`
	Size    int64  `json:"size"`
}

type submissionView struct {
	Executing bool `json:"executing"`
	Result    struct {
		Status struct {
			Code int    `json:"code"`
			Name string `json:"name"`
		} `json:"status"`
		Streams struct {
			Output  stream `json:"output"`
			Error   stream `json:"error"`
			CmpInfo stream `json:"cmpinfo"`
		} `json:"streams"`
		Time   float64 `json:"time"`   // seconds
		Memory float64 `json:"memory"` // kilobytes
	} `json:"result"`
}

// RunTests submits each case individually, polls them to completion with a
// bounded worker pool, and grades outputs locally.
func (c *Client) RunTests(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error) {
	compilerID, ok := c.cfg.Compilers[req.Language]
	if !ok {
		return nil, errors.Newf(errors.LanguageNotSupported,
			"sphere has no compiler id for %q", req.Language)
	}

	results := make([]model.TestCaseResult, len(req.TestCases))
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, tc := range req.TestCases {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, tc model.TestCase) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = c.runCase(ctx, compilerID, idx, tc, req.SourceCode)
		}(i, tc)
	}
	wg.Wait()
	return results, nil
}

func (c *Client) runCase(ctx context.Context, compilerID, idx int, tc model.TestCase, source string) model.TestCaseResult {
	id, err := c.createSubmission(ctx, compilerID, source, remote.EncodeStdin(tc.Input))
	if err != nil {
		return remote.FailureResult(idx, tc, remote.CategoryInternal, err.Error())
	}

	var view *submissionView
	pollErr := remote.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (bool, error) {
		v, err := c.getSubmission(ctx, id)
		if err != nil {
			return false, err
		}
		if v.Executing {
			return false, nil
		}
		view = v
		return true, nil
	})
	if pollErr != nil {
		return remote.FailureResult(idx, tc, remote.CategoryInternal, pollErr.Error())
	}

	return c.gradeView(ctx, idx, tc, view)
}

func (c *Client) gradeView(ctx context.Context, idx int, tc model.TestCase, view *submissionView) model.TestCaseResult {
	timeMs := int64(view.Result.Time * 1000)
	memMB := remote.KBToMB(view.Result.Memory)

	finish := func(r model.TestCaseResult) model.TestCaseResult {
		r.ExecutionTimeMs = timeMs
		r.MemoryUsedMB = memMB
		return r
	}

	switch view.Result.Status.Code {
	case statusCompileError:
		detail := c.resolveStream(ctx, view.Result.Streams.CmpInfo)
		return finish(remote.FailureResult(idx, tc, remote.CategoryCompileError, detail))
	case statusTimeLimit:
		return finish(remote.FailureResult(idx, tc, remote.CategoryTimeLimit, ""))
	case statusMemoryLimit:
		return finish(remote.FailureResult(idx, tc, remote.CategoryMemoryLimit, ""))
	case statusRuntimeError:
		detail := c.resolveStream(ctx, view.Result.Streams.Error)
		return finish(remote.FailureResult(idx, tc, remote.CategoryRuntimeError, detail))
	case statusAccepted, statusWrongAnswer:
		// Grade content ourselves below.
	default:
		return finish(remote.FailureResult(idx, tc, remote.CategoryInternal, view.Result.Status.Name))
	}

	actual := strings.TrimSpace(c.resolveStream(ctx, view.Result.Streams.Output))
	diag := grader.Compare(actual, tc.ExpectedOutput)
	return model.TestCaseResult{
		TestIndex:       idx,
		Input:           tc.Input,
		ExpectedOutput:  tc.ExpectedOutput,
		ActualOutput:    actual,
		Passed:          diag.Matched,
		ExecutionTimeMs: timeMs,
		MemoryUsedMB:    memMB,
		Diagnostic:      diag,
	}
}

// resolveStream returns a stream's content, fetching it when the provider
// handed back a URI instead of inline text. Fetch failures degrade to empty
// content with a warning rather than failing the case outright.
func (c *Client) resolveStream(ctx context.Context, s stream) string {
	if s.Content != "" {
		return s.Content
	}
	if s.URI == "" {
		return ""
	}
	content, err := remote.FetchText(ctx, c.http, s.URI)
	if err != nil {
		logger.Warn(ctx, "fetch sphere stream failed",
			zap.String("uri", s.URI),
			zap.Error(err))
		return ""
	}
	return content
}

func (c *Client) createSubmission(ctx context.Context, compilerID int, source, stdin string) (int64, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"compilerId": compilerID,
		"source":     source,
		"input":      stdin,
	})
	if err != nil {
		return 0, errors.Wrapf(err, errors.InternalServerError, "marshal submission failed")
	}

	u := fmt.Sprintf("%s/submissions?access_token=%s", c.cfg.BaseURL, url.QueryEscape(c.cfg.AccessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return 0, errors.Wrapf(err, errors.ProviderUnavailable, "build submit request failed")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ProviderUnavailable, "submit failed")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, errors.Newf(errors.ProviderUnavailable,
			"sphere submit returned status %d: %s", resp.StatusCode, string(body))
	}

	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, errors.Wrapf(err, errors.MalformedProviderResponse, "decode submit response failed")
	}
	if created.ID == 0 {
		return 0, errors.Newf(errors.MalformedProviderResponse, "sphere submit returned no id")
	}
	return created.ID, nil
}

func (c *Client) getSubmission(ctx context.Context, id int64) (*submissionView, error) {
	u := fmt.Sprintf("%s/submissions/%d?access_token=%s", c.cfg.BaseURL, id, url.QueryEscape(c.cfg.AccessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ProviderUnavailable, "build poll request failed")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ProviderUnavailable, "poll submission failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ProviderUnavailable,
			"sphere poll returned status %d", resp.StatusCode)
	}

	var view submissionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, errors.Wrapf(err, errors.MalformedProviderResponse, "decode submission failed")
	}
	return &view, nil
}
