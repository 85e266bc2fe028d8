package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
	"codejudge/internal/submit/repository"

	"github.com/go-sql-driver/mysql"
)

func assign(dest []interface{}, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = values[i].(string)
		case *int64:
			*p = values[i].(int64)
		case *int:
			*p = values[i].(int)
		case *float64:
			*p = values[i].(float64)
		case *time.Time:
			*p = values[i].(time.Time)
		case **string:
			if values[i] == nil {
				*p = nil
			} else {
				s := values[i].(string)
				*p = &s
			}
		default:
			return fmt.Errorf("unsupported scan type %T", d)
		}
	}
	return nil
}

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data [][]interface{}
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...interface{}) error { return assign(dest, r.data[r.pos-1]) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

type fakeDB struct {
	execErr   error
	execQuery string
	execArgs  []interface{}
	lastQuery string
	lastArgs  []interface{}
	row       fakeRow
	rows      [][]interface{}
}

func (d *fakeDB) Query(_ context.Context, query string, args ...interface{}) (db.Rows, error) {
	d.lastQuery, d.lastArgs = query, args
	return &fakeRows{data: d.rows}, nil
}
func (d *fakeDB) QueryRow(_ context.Context, query string, args ...interface{}) db.Row {
	d.lastQuery, d.lastArgs = query, args
	return d.row
}
func (d *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	d.execQuery, d.execArgs = query, args
	return nil, d.execErr
}
func (d *fakeDB) Ping(context.Context) error { return nil }
func (d *fakeDB) Close() error               { return nil }

func row(id string, results interface{}) []interface{} {
	return []interface{}{
		id, int64(7), int64(3), "python", "def f(): pass", "1/2 tests",
		1, 2, 0.01, 2000.33, results, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateWritesSummaryColumns(t *testing.T) {
	database := &fakeDB{}
	repo := repository.NewSubmissionRepository(database)

	sub := &model.Submission{
		SubmissionID: "s-1",
		UserID:       7,
		ProblemID:    3,
		LanguageID:   "python",
		Code:         "def f(): pass",
		Summary:      model.Summary{Status: "1/2 tests", PassedTests: 1, TotalTests: 2, ExecutionTime: 0.01, MemoryUsed: 2000.33},
		Results:      []model.TestResult{{Index: 0, Passed: true}, {Index: 1}},
	}
	if err := repo.Create(context.Background(), sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(database.execQuery, "INSERT INTO submissions") {
		t.Fatalf("unexpected query: %s", database.execQuery)
	}
	if len(database.execArgs) != 12 {
		t.Fatalf("expected 12 args, got %d", len(database.execArgs))
	}
	if database.execArgs[5] != "1/2 tests" || database.execArgs[8] != 0.01 || database.execArgs[9] != 2000.33 {
		t.Fatalf("summary columns not written: %v", database.execArgs)
	}
	if js, _ := database.execArgs[10].(string); !strings.Contains(js, `"passed":true`) {
		t.Fatalf("results json not written: %v", database.execArgs[10])
	}
	if sub.CreatedAt.IsZero() {
		t.Fatalf("created_at should be assigned")
	}
}

func TestCreateDuplicateID(t *testing.T) {
	database := &fakeDB{execErr: fmt.Errorf("exec failed: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 's-1' for key 'submissions.PRIMARY'",
	})}
	repo := repository.NewSubmissionRepository(database)

	sub := &model.Submission{SubmissionID: "s-1", UserID: 7, ProblemID: 3, LanguageID: "python"}
	if err := repo.Create(context.Background(), sub); !errors.Is(err, repository.ErrSubmissionExists) {
		t.Fatalf("expected ErrSubmissionExists, got %v", err)
	}

	database.execErr = errors.New("exec failed: connection reset")
	if err := repo.Create(context.Background(), sub); err == nil || errors.Is(err, repository.ErrSubmissionExists) {
		t.Fatalf("other errors must pass through, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	repo := repository.NewSubmissionRepository(&fakeDB{})
	tests := []struct {
		name string
		sub  *model.Submission
	}{
		{name: "nil", sub: nil},
		{name: "missing id", sub: &model.Submission{UserID: 1, ProblemID: 1, LanguageID: "go"}},
		{name: "missing user", sub: &model.Submission{SubmissionID: "x", ProblemID: 1, LanguageID: "go"}},
		{name: "missing problem", sub: &model.Submission{SubmissionID: "x", UserID: 1, LanguageID: "go"}},
		{name: "missing language", sub: &model.Submission{SubmissionID: "x", UserID: 1, ProblemID: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(context.Background(), tt.sub); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGetByID(t *testing.T) {
	database := &fakeDB{row: fakeRow{values: row("s-1", `[{"index":0,"passed":true,"stdout":"3"}]`)}}
	repo := repository.NewSubmissionRepository(database)

	got, err := repo.GetByID(context.Background(), "s-1", 7)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Summary.Status != "1/2 tests" || got.Summary.MemoryUsed != 2000.33 {
		t.Fatalf("unexpected summary: %+v", got.Summary)
	}
	if len(got.Results) != 1 || got.Results[0].Stdout != "3" {
		t.Fatalf("unexpected results: %+v", got.Results)
	}
	if database.lastArgs[0] != "s-1" || database.lastArgs[1] != int64(7) {
		t.Fatalf("query should filter by id and owner: %v", database.lastArgs)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := repository.NewSubmissionRepository(&fakeDB{row: fakeRow{err: sql.ErrNoRows}})
	if _, err := repo.GetByID(context.Background(), "missing", 7); err != repository.ErrSubmissionNotFound {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestListByProblem(t *testing.T) {
	database := &fakeDB{rows: [][]interface{}{row("s-2", nil), row("s-1", "[]")}}
	repo := repository.NewSubmissionRepository(database)

	got, err := repo.ListByProblem(context.Background(), repository.ListFilter{UserID: 7, ProblemID: 3, LanguageID: "python"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 || got[0].SubmissionID != "s-2" {
		t.Fatalf("unexpected list: %+v", got)
	}
	if !strings.Contains(database.lastQuery, "language_id = ?") || !strings.Contains(database.lastQuery, "ORDER BY created_at DESC") {
		t.Fatalf("unexpected query: %s", database.lastQuery)
	}
	if database.lastArgs[len(database.lastArgs)-1] != 20 {
		t.Fatalf("default limit should be 20, args=%v", database.lastArgs)
	}

	if _, err := repo.ListByProblem(context.Background(), repository.ListFilter{UserID: 7, ProblemID: 3, Limit: 500}); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.Contains(database.lastQuery, "language_id = ?") {
		t.Fatalf("language filter should be optional: %s", database.lastQuery)
	}
	if database.lastArgs[len(database.lastArgs)-1] != 100 {
		t.Fatalf("limit should be capped, args=%v", database.lastArgs)
	}
}
