package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("submission already exists")
)

// Schema creates the submissions table.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
	submission_id     VARCHAR(64)   NOT NULL PRIMARY KEY,
	user_id           BIGINT        NOT NULL,
	problem_id        BIGINT        NOT NULL,
	language_id       VARCHAR(32)   NOT NULL,
	code              MEDIUMTEXT    NOT NULL,
	status            VARCHAR(32)   NOT NULL,
	passed_tests      INT           NOT NULL DEFAULT 0,
	total_tests       INT           NOT NULL DEFAULT 0,
	execution_time    DECIMAL(10,2) NOT NULL DEFAULT 0,
	memory_used       DECIMAL(12,2) NOT NULL DEFAULT 0,
	test_results_json MEDIUMTEXT    NULL,
	created_at        DATETIME(3)   NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	KEY idx_submissions_user_problem (user_id, problem_id, language_id, created_at)
)`

// ListFilter narrows a submission listing.
type ListFilter struct {
	UserID     int64
	ProblemID  int64
	LanguageID string
	Limit      int
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, submissionID string, userID int64) (*model.Submission, error)
	ListByProblem(ctx context.Context, filter ListFilter) ([]model.Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

// EnsureSchema creates the submissions table when missing.
func (r *MySQLSubmissionRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

const submissionColumns = "submission_id, user_id, problem_id, language_id, code, status, passed_tests, total_tests, execution_time, memory_used, test_results_json, created_at"

// Create inserts a submission record. Inserting an id that is already stored
// returns ErrSubmissionExists.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.LanguageID == "" {
		return errors.New("languageID is required")
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	results, err := json.Marshal(submission.Results)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO submissions
		(` + submissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.UserID,
		submission.ProblemID,
		submission.LanguageID,
		submission.Code,
		submission.Summary.Status,
		submission.Summary.PassedTests,
		submission.Summary.TotalTests,
		submission.Summary.ExecutionTime,
		submission.Summary.MemoryUsed,
		string(results),
		submission.CreatedAt,
	)
	if _, dup := db.UniqueViolation(err); dup {
		return ErrSubmissionExists
	}
	return err
}

// GetByID retrieves a submission owned by userID.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, submissionID string, userID int64) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? AND user_id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID, userID)
	submission, err := scanSubmission(row, true)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

// ListByProblem returns the caller's submissions for a problem, newest first.
// Per-test results are not loaded.
func (r *MySQLSubmissionRepository) ListByProblem(ctx context.Context, filter ListFilter) ([]model.Submission, error) {
	if filter.UserID <= 0 {
		return nil, errors.New("userID is required")
	}
	if filter.ProblemID <= 0 {
		return nil, errors.New("problemID is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ? AND problem_id = ?"
	args := []interface{}{filter.UserID, filter.ProblemID}
	if filter.LanguageID != "" {
		query += " AND language_id = ?"
		args = append(args, filter.LanguageID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner, withResults bool) (*model.Submission, error) {
	submission := &model.Submission{}
	var results *string
	if err := row.Scan(
		&submission.SubmissionID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.LanguageID,
		&submission.Code,
		&submission.Summary.Status,
		&submission.Summary.PassedTests,
		&submission.Summary.TotalTests,
		&submission.Summary.ExecutionTime,
		&submission.Summary.MemoryUsed,
		&results,
		&submission.CreatedAt,
	); err != nil {
		return nil, err
	}
	if withResults && results != nil && *results != "" {
		if err := json.Unmarshal([]byte(*results), &submission.Results); err != nil {
			return nil, err
		}
	}
	return submission, nil
}
