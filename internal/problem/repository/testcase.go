package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"

	"github.com/zeromicro/go-zero/core/syncx"
)

const (
	defaultTestCaseTTL      = 30 * time.Minute
	defaultTestCaseEmptyTTL = 1 * time.Minute
	testCaseKeyPrefix       = "problem:testcases:"
)

// TestCaseRepository loads the test cases of a problem for one language.
type TestCaseRepository interface {
	List(ctx context.Context, problemID int64, languageID string) ([]model.TestCase, error)
}

// MySQLTestCaseRepository reads problem_outputs with a cache-aside layer.
type MySQLTestCaseRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
	flight   syncx.SingleFlight
}

// NewTestCaseRepository creates a test case repository with defaults.
func NewTestCaseRepository(database db.Database, cacheClient cache.Cache) *MySQLTestCaseRepository {
	return NewTestCaseRepositoryWithTTL(database, cacheClient, defaultTestCaseTTL, defaultTestCaseEmptyTTL)
}

// NewTestCaseRepositoryWithTTL creates a test case repository with custom TTL.
func NewTestCaseRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLTestCaseRepository {
	if ttl <= 0 {
		ttl = defaultTestCaseTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultTestCaseEmptyTTL
	}
	return &MySQLTestCaseRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
		flight:   syncx.NewSingleFlight(),
	}
}

// List returns test cases ordered by creation. An empty set is TestCaseNotFound.
func (r *MySQLTestCaseRepository) List(ctx context.Context, problemID int64, languageID string) ([]model.TestCase, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "must be positive")
	}
	languageID = strings.ToLower(strings.TrimSpace(languageID))
	if languageID == "" {
		return nil, appErr.ValidationError("language_id", "required")
	}

	key := testCaseKey(problemID, languageID)
	val, err := r.flight.Do(key, func() (any, error) {
		if r.cache == nil {
			return r.listFromDB(ctx, problemID, languageID)
		}
		return cache.GetWithCached[[]model.TestCase](
			ctx,
			r.cache,
			key,
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(cases []model.TestCase) bool { return len(cases) == 0 },
			marshalTestCases,
			unmarshalTestCases,
			func(ctx context.Context) ([]model.TestCase, error) {
				return r.listFromDB(ctx, problemID, languageID)
			},
		)
	})
	if err != nil {
		return nil, err
	}
	cases, _ := val.([]model.TestCase)
	if len(cases) == 0 {
		return nil, appErr.New(appErr.TestCaseNotFound).
			WithDetail("problem_id", problemID).
			WithDetail("language_id", languageID)
	}
	return cases, nil
}

func (r *MySQLTestCaseRepository) listFromDB(ctx context.Context, problemID int64, languageID string) ([]model.TestCase, error) {
	if r.db == nil {
		return nil, appErr.New(appErr.DatabaseError).WithMessage("database is not initialized")
	}
	query := `
		SELECT test_code, expected_output
		FROM problem_outputs
		WHERE problem_id = ? AND language_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, problemID, languageID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query test cases failed")
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var testCode, expected string
		if err := rows.Scan(&testCode, &expected); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		cases = append(cases, model.TestCase{
			TestCode:       testCode,
			ExpectedOutput: model.ParseExpectedOutput(expected),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return cases, nil
}

func testCaseKey(problemID int64, languageID string) string {
	return testCaseKeyPrefix + strconv.FormatInt(problemID, 10) + ":" + languageID
}

func marshalTestCases(cases []model.TestCase) string {
	payload, err := json.Marshal(cases)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalTestCases(data string) ([]model.TestCase, error) {
	if data == "" {
		return nil, nil
	}
	var cases []model.TestCase
	if err := json.Unmarshal([]byte(data), &cases); err != nil {
		return nil, err
	}
	return cases, nil
}
