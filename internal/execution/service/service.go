// Package service orchestrates grading requests: validation, source
// resolution, status tracking, dispatch, aggregation, and event publishing.
package service

import (
	"context"
	"io"
	"time"

	"codegrade/internal/common/storage"
	"codegrade/internal/execution/aggregate"
	"codegrade/internal/execution/language"
	"codegrade/internal/execution/model"
	"codegrade/internal/execution/repository"
	"codegrade/pkg/errors"
	"codegrade/pkg/utils/contextkey"
	"codegrade/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes the execution service.
type Config struct {
	// MaxConcurrentExecutions bounds requests graded at once; further
	// requests are rejected, not queued.
	MaxConcurrentExecutions int `yaml:"maxConcurrentExecutions"`

	// MaxSourceBytes rejects oversized submissions up front.
	MaxSourceBytes int `yaml:"maxSourceBytes"`

	// SourceBucket is where SourceKey submissions live.
	SourceBucket string `yaml:"sourceBucket"`

	// ExecutionTimeout bounds one whole grading request.
	ExecutionTimeout time.Duration `yaml:"executionTimeout"`

	// StorageTimeout bounds one source fetch.
	StorageTimeout time.Duration `yaml:"storageTimeout"`
}

func (c *Config) setDefaults() {
	if c.MaxConcurrentExecutions <= 0 {
		c.MaxConcurrentExecutions = 8
	}
	if c.MaxSourceBytes <= 0 {
		c.MaxSourceBytes = 256 * 1024
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = 5 * time.Minute
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 10 * time.Second
	}
}

// Dispatcher routes a request to an execution backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.ExecutionRequest) ([]model.TestCaseResult, error)
}

// ExecutionService is the application core of the grading engine.
type ExecutionService struct {
	cfg        Config
	registry   *language.Registry
	dispatcher Dispatcher
	statusRepo *repository.StatusRepository
	publisher  *repository.EventPublisher
	storage    storage.ObjectStorage // optional
	sem        chan struct{}
}

// NewExecutionService wires the service. statusRepo is required; publisher
// and objectStorage may be nil when the deployment does not use them.
func NewExecutionService(
	cfg Config,
	registry *language.Registry,
	d Dispatcher,
	statusRepo *repository.StatusRepository,
	publisher *repository.EventPublisher,
	objectStorage storage.ObjectStorage,
) *ExecutionService {
	cfg.setDefaults()
	return &ExecutionService{
		cfg:        cfg,
		registry:   registry,
		dispatcher: d,
		statusRepo: statusRepo,
		publisher:  publisher,
		storage:    objectStorage,
		sem:        make(chan struct{}, cfg.MaxConcurrentExecutions),
	}
}

// Execute grades one request synchronously. Validation problems return an
// error; execution-stage failures return a failure summary whose results
// still cover every test case.
func (s *ExecutionService) Execute(ctx context.Context, req model.ExecutionRequest) (model.ExecutionSummary, error) {
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, req.SubmissionID)
	received := time.Now().Unix()

	if err := s.validate(ctx, &req); err != nil {
		s.saveStatus(ctx, &model.ExecutionStatusRecord{
			SubmissionID: req.SubmissionID,
			Status:       model.StatusFailed,
			Language:     req.Language,
			ErrorCode:    int(errors.GetCode(err)),
			ErrorMessage: err.Error(),
			Timestamps:   model.Timestamps{ReceivedAt: received, FinishedAt: time.Now().Unix()},
		})
		return model.ExecutionSummary{}, err
	}

	select {
	case s.sem <- struct{}{}:
	default:
		err := errors.Newf(errors.ExecutionQueueFull, "execution queue is full")
		logger.Warn(ctx, "rejecting execution, queue full",
			zap.Int("capacity", s.cfg.MaxConcurrentExecutions))
		return model.ExecutionSummary{}, err
	}
	defer func() { <-s.sem }()

	s.saveStatus(ctx, &model.ExecutionStatusRecord{
		SubmissionID: req.SubmissionID,
		Status:       model.StatusRunning,
		Language:     req.Language,
		Timestamps:   model.Timestamps{ReceivedAt: received},
	})

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancel()

	results, err := s.dispatcher.Dispatch(cctx, req)

	var summary model.ExecutionSummary
	status := model.StatusFinished
	if err != nil {
		logger.Error(ctx, "execution failed",
			zap.String("language", req.Language),
			zap.Error(err))
		summary = aggregate.Failure(req, err)
		status = model.StatusFailed
	} else {
		summary = aggregate.Summarize(req.SubmissionID, results)
	}

	record := &model.ExecutionStatusRecord{
		SubmissionID: req.SubmissionID,
		Status:       status,
		Language:     req.Language,
		Summary:      &summary,
		ErrorMessage: summary.ErrorMessage,
		Timestamps:   model.Timestamps{ReceivedAt: received, FinishedAt: time.Now().Unix()},
	}
	if err != nil {
		record.ErrorCode = int(errors.GetCode(err))
	}
	s.saveStatus(ctx, record)
	s.publisher.PublishFinished(ctx, record)

	logger.Info(ctx, "execution finished",
		zap.String("status", string(status)),
		zap.Bool("overall_passed", summary.OverallPassed),
		zap.Int64("total_time_ms", summary.TotalExecutionTimeMs))

	return summary, nil
}

// GetStatus returns the persisted record for a submission.
func (s *ExecutionService) GetStatus(ctx context.Context, submissionID string) (*model.ExecutionStatusRecord, error) {
	return s.statusRepo.Get(ctx, submissionID)
}

// Languages lists the IDs the registry supports.
func (s *ExecutionService) Languages() []string {
	return s.registry.IDs()
}

func (s *ExecutionService) validate(ctx context.Context, req *model.ExecutionRequest) error {
	if !s.registry.Has(req.Language) {
		return errors.Newf(errors.LanguageNotSupported, "language not supported: %s", req.Language)
	}
	if len(req.TestCases) == 0 {
		return errors.Newf(errors.NoTestCases, "at least one test case is required")
	}
	if req.SourceCode == "" && req.SourceKey != "" {
		source, err := s.resolveSource(ctx, req.SourceKey)
		if err != nil {
			return err
		}
		req.SourceCode = source
	}
	if req.SourceCode == "" {
		return errors.ValidationError("source_code", "source code is required")
	}
	if len(req.SourceCode) > s.cfg.MaxSourceBytes {
		return errors.Newf(errors.CodeTooLarge, "source exceeds %d bytes", s.cfg.MaxSourceBytes)
	}
	return nil
}

// resolveSource loads the submission source from object storage.
func (s *ExecutionService) resolveSource(ctx context.Context, key string) (string, error) {
	if s.storage == nil {
		return "", errors.Newf(errors.StorageError, "object storage is not configured")
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	obj, err := s.storage.GetObject(sctx, s.cfg.SourceBucket, key)
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "fetch source %s failed", key)
	}
	defer obj.Close()

	raw, err := io.ReadAll(io.LimitReader(obj, int64(s.cfg.MaxSourceBytes)+1))
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "read source %s failed", key)
	}
	return string(raw), nil
}

func (s *ExecutionService) saveStatus(ctx context.Context, record *model.ExecutionStatusRecord) {
	if s.statusRepo == nil {
		return
	}
	if err := s.statusRepo.Save(ctx, record); err != nil {
		logger.Warn(ctx, "save execution status failed",
			zap.String("status", string(record.Status)),
			zap.Error(err))
	}
}
