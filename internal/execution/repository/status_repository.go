// Package repository persists execution status records and publishes
// lifecycle events.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"codegrade/internal/common/cache"
	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"
)

const statusKeyPrefix = "execution:status:"

// StatusRepository stores one record per submission in the cache.
type StatusRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewStatusRepository creates a status repository. ttl <= 0 means records
// keep for 24 hours.
func NewStatusRepository(c cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusRepository{cache: c, ttl: ttl}
}

// Save writes the record, replacing any previous state for the submission.
func (r *StatusRepository) Save(ctx context.Context, record *model.ExecutionStatusRecord) error {
	if record == nil || record.SubmissionID == "" {
		return errors.ValidationError("submission_id", "submission id is required")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, errors.InternalServerError, "marshal status record failed")
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+record.SubmissionID, string(raw), r.ttl); err != nil {
		return errors.Wrapf(err, errors.CacheError, "save status record failed")
	}
	return nil
}

// Get loads the record for a submission. A missing record is a NotFound error.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (*model.ExecutionStatusRecord, error) {
	if submissionID == "" {
		return nil, errors.ValidationError("submission_id", "submission id is required")
	}
	raw, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CacheError, "load status record failed")
	}
	if raw == "" {
		return nil, errors.Newf(errors.NotFound, "no status for submission %s", submissionID)
	}
	var record model.ExecutionStatusRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, errors.Wrapf(err, errors.InternalServerError, "decode status record failed")
	}
	return &record, nil
}
