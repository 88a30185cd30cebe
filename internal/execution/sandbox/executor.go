// Package sandbox executes submissions locally: it materialises the source
// in a throwaway directory, compiles once when the language needs it, then
// runs each test case in a child process under wall-clock and memory limits.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codegrade/internal/execution/grader"
	"codegrade/internal/execution/language"
	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"
	"codegrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config tunes the local executor.
type Config struct {
	// WorkRoot is where per-submission scratch directories are created.
	// Empty means the system temp dir.
	WorkRoot string `yaml:"workRoot"`

	// Concurrency bounds how many test cases run at once.
	Concurrency int `yaml:"concurrency"`

	// CompileTimeout bounds the compile step.
	CompileTimeout time.Duration `yaml:"compileTimeout"`

	// OutputLimitBytes caps captured stdout/stderr per process.
	OutputLimitBytes int64 `yaml:"outputLimitBytes"`

	// MonitorInterval is the RSS sampling interval.
	MonitorInterval time.Duration `yaml:"monitorInterval"`
}

func (c *Config) setDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = 30 * time.Second
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = 64 * 1024
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 50 * time.Millisecond
	}
}

// Executor runs submissions on the local machine.
type Executor struct {
	cfg      Config
	registry *language.Registry
}

// NewExecutor creates a local executor backed by the given language registry.
func NewExecutor(cfg Config, registry *language.Registry) *Executor {
	cfg.setDefaults()
	return &Executor{cfg: cfg, registry: registry}
}

// Name identifies this backend in dispatch decisions and logs.
func (e *Executor) Name() string { return "local" }

// RunTests grades every test case of the request and returns one result per
// case, in request order. The scratch directory is removed before returning,
// whatever happened.
func (e *Executor) RunTests(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error) {
	spec, err := e.registry.Get(req.Language)
	if err != nil {
		return nil, err
	}

	wrapped, err := WrapSource(spec, req.SourceCode, req.EntryPoint)
	if err != nil {
		return nil, errors.Wrapf(err, errors.SandboxError, "prepare source failed")
	}

	dir, err := os.MkdirTemp(e.cfg.WorkRoot, "exec-"+spec.ID+"-")
	if err != nil {
		return nil, errors.Wrapf(err, errors.SandboxError, "create work dir failed")
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn(ctx, "remove work dir failed", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	srcPath := filepath.Join(dir, spec.SourceFile)
	if err := os.WriteFile(srcPath, []byte(wrapped), 0o644); err != nil {
		return nil, errors.Wrapf(err, errors.SandboxError, "write source failed")
	}
	binPath := srcPath
	if spec.BinaryFile != "" {
		binPath = filepath.Join(dir, spec.BinaryFile)
	}

	limits := effectiveLimits(spec, req)

	if spec.Compiled() {
		if compileOut, err := e.compile(ctx, spec, dir, srcPath, binPath); err != nil {
			return nil, err
		} else if compileOut != "" {
			// Compiler rejected the source: every case fails as a
			// compilation error and nothing runs.
			return compileFailureResults(req, compileOut), nil
		}
	}

	runCmd, err := language.ExpandCommand(spec.RunCmd, dir, srcPath, binPath)
	if err != nil {
		return nil, err
	}

	results := make([]model.TestCaseResult, len(req.TestCases))
	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, tc := range req.TestCases {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, tc model.TestCase) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.runCase(ctx, runCmd, dir, limits, idx, tc)
		}(i, tc)
	}
	wg.Wait()

	return results, nil
}

type runLimits struct {
	timeLimit     time.Duration
	memoryLimitKB int64
}

func effectiveLimits(spec language.Spec, req model.ExecutionRequest) runLimits {
	timeMs := req.TimeLimitMs
	if timeMs <= 0 {
		timeMs = spec.DefaultTimeLimitMs
	}
	memMB := req.MemoryLimitMB
	if memMB <= 0 {
		memMB = spec.DefaultMemoryLimitMB
	}
	return runLimits{
		timeLimit:     time.Duration(timeMs) * time.Millisecond,
		memoryLimitKB: memMB * 1024,
	}
}

// compile runs the compile command once. A non-zero exit returns the
// compiler's output with a nil error; infrastructure failures return an error.
func (e *Executor) compile(ctx context.Context, spec language.Spec, dir, srcPath, binPath string) (string, error) {
	argv, err := language.ExpandCommand(spec.CompileCmd, dir, srcPath, binPath)
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = newLimitWriter(&out, e.cfg.OutputLimitBytes)
	cmd.Stderr = newLimitWriter(&out, e.cfg.OutputLimitBytes)

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", errors.Newf(errors.CompilationError, "compilation timed out after %s", e.cfg.CompileTimeout)
		}
		if _, ok := err.(*exec.ExitError); ok {
			msg := strings.TrimSpace(out.String())
			if msg == "" {
				msg = err.Error()
			}
			return msg, nil
		}
		return "", errors.Wrapf(err, errors.SandboxError, "start compiler failed")
	}
	return "", nil
}

func compileFailureResults(req model.ExecutionRequest, compileOut string) []model.TestCaseResult {
	results := make([]model.TestCaseResult, len(req.TestCases))
	msg := "Compilation Error: " + compileOut
	for i, tc := range req.TestCases {
		results[i] = model.TestCaseResult{
			TestIndex:      i,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Passed:         false,
			Error:          msg,
			Diagnostic: model.ComparisonDiagnostic{
				Kind:   model.MatchDifferent,
				Detail: "compilation failed",
			},
		}
	}
	return results
}

// runCase executes one test case in its own child process.
func (e *Executor) runCase(ctx context.Context, argv []string, dir string, limits runLimits, idx int, tc model.TestCase) model.TestCaseResult {
	result := model.TestCaseResult{
		TestIndex:      idx,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	}

	stdin, err := encodeInput(tc.Input)
	if err != nil {
		result.Error = "invalid test input: " + err.Error()
		result.Diagnostic = model.ComparisonDiagnostic{Kind: model.MatchDifferent, Detail: result.Error}
		return result
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = newLimitWriter(&stdout, e.cfg.OutputLimitBytes)
	cmd.Stderr = newLimitWriter(&stderr, e.cfg.OutputLimitBytes)
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		result.Error = "failed to start process: " + err.Error()
		result.Diagnostic = model.ComparisonDiagnostic{Kind: model.MatchDifferent, Detail: result.Error}
		return result
	}

	monitor := startMemoryMonitor(cmd.Process.Pid, limits.memoryLimitKB, e.cfg.MonitorInterval, func() {
		killProcessTree(cmd)
	})

	var timedOut atomic.Bool
	waitDone := make(chan struct{})
	go func() {
		select {
		case <-waitDone:
		case <-ctx.Done():
			killProcessTree(cmd)
		case <-time.After(limits.timeLimit):
			timedOut.Store(true)
			killProcessTree(cmd)
		}
	}()

	waitErr := cmd.Wait()
	close(waitDone)
	peakKB, memExceeded := monitor.Stop()

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	result.MemoryUsedMB = float64(peakKB) / 1024.0
	result.ActualOutput = sanitizeOutput(stdout.Bytes())

	switch {
	case memExceeded:
		result.Error = fmt.Sprintf("Memory Limit Exceeded (%d MB)", limits.memoryLimitKB/1024)
	case timedOut.Load():
		result.Error = fmt.Sprintf("Time Limit Exceeded (%d ms)", limits.timeLimit.Milliseconds())
	case ctx.Err() != nil:
		result.Error = "execution cancelled: " + ctx.Err().Error()
	case waitErr != nil:
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = waitErr.Error()
		}
		result.Error = "Runtime Error: " + errText
	}

	if result.Error != "" {
		result.Diagnostic = model.ComparisonDiagnostic{Kind: model.MatchDifferent, Detail: result.Error}
		logger.Debug(ctx, "test case failed before comparison",
			zap.Int("test_index", idx),
			zap.String("error", result.Error))
		return result
	}

	result.Diagnostic = grader.Compare(result.ActualOutput, tc.ExpectedOutput)
	result.Passed = result.Diagnostic.Matched
	return result
}
