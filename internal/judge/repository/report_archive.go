package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const (
	reportPrefix      = "reports"
	reportContentType = "application/zstd"
	maxReportSize     = 32 << 20
)

// ReportArchive stores zstd-compressed verdict reports in object storage.
type ReportArchive struct {
	storage storage.ObjectStorage
	bucket  string
}

// NewReportArchive creates a report archive for bucket.
func NewReportArchive(objectStorage storage.ObjectStorage, bucket string) *ReportArchive {
	return &ReportArchive{storage: objectStorage, bucket: bucket}
}

// ReportKey returns the object key of a submission report.
func ReportKey(submissionID string) string {
	return path.Join(reportPrefix, submissionID+".json.zst")
}

// Save compresses and uploads the full submission report.
func (a *ReportArchive) Save(ctx context.Context, submission model.Submission) error {
	if a == nil || a.storage == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("report archive is not configured")
	}
	if submission.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	raw, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("marshal report failed: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("create zstd encoder failed: %w", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	_ = enc.Close()

	key := ReportKey(submission.SubmissionID)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), reportContentType); err != nil {
		return appErr.Wrapf(err, appErr.ObjectStorageError, "archive report failed")
	}
	return nil
}

// Load downloads and decompresses a submission report.
func (a *ReportArchive) Load(ctx context.Context, submissionID string) (model.Submission, error) {
	if a == nil || a.storage == nil {
		return model.Submission{}, appErr.New(appErr.ServiceUnavailable).WithMessage("report archive is not configured")
	}
	if submissionID == "" {
		return model.Submission{}, appErr.ValidationError("submission_id", "required")
	}
	reader, err := a.storage.GetObject(ctx, a.bucket, ReportKey(submissionID))
	if err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.ObjectStorageError, "load report failed")
	}
	defer reader.Close()

	dec, err := zstd.NewReader(reader)
	if err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.ObjectStorageError, "open report failed")
	}
	defer dec.Close()

	raw, err := io.ReadAll(io.LimitReader(dec, maxReportSize))
	if err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.ObjectStorageError, "decompress report failed")
	}
	var submission model.Submission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.ObjectStorageError, "decode report failed")
	}
	return submission, nil
}
