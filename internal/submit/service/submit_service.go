package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/mq"
	"codejudge/internal/judge/model"
	judgeRepo "codejudge/internal/judge/repository"
	"codejudge/internal/submit/repository"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	rateUserKeyPrefix    = "submit:rate:user:"
	rateIPKeyPrefix      = "submit:rate:ip:"
	processingMarker     = "processing"
	defaultMaxCodeBytes  = 64 << 10
)

// Judge runs a solution against test cases.
type Judge interface {
	Judge(ctx context.Context, languageID, userCode string, testCases []model.TestCase) (*model.Verdict, error)
}

// TestCaseProvider loads the test cases of a problem.
type TestCaseProvider interface {
	List(ctx context.Context, problemID int64, languageID string) ([]model.TestCase, error)
}

// StatusStore keeps the latest status of a submission.
type StatusStore interface {
	Get(ctx context.Context, submissionID string) (model.SubmissionStatus, error)
	Save(ctx context.Context, status model.SubmissionStatus) error
}

// VerdictPublisher announces final verdicts.
type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, event model.VerdictEvent) error
}

// ReportArchiver stores the full report of a judged submission.
type ReportArchiver interface {
	Save(ctx context.Context, submission model.Submission) error
}

// TaskQueue enqueues asynchronous judge tasks.
type TaskQueue interface {
	EnqueueTask(ctx context.Context, task model.JudgeTask) error
}

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int
	IPMax   int
	Window  time.Duration
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration
	Cache   time.Duration
	MQ      time.Duration
	Storage time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	Judge          Judge
	TestCases      TestCaseProvider
	SubmissionRepo repository.SubmissionRepository
	StatusRepo     StatusStore
	Cache          cache.Cache

	// Optional sinks; a nil sink is skipped.
	Publisher VerdictPublisher
	Archive   ReportArchiver
	Tasks     TaskQueue

	TaskTopic      string
	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	RateLimit      RateLimitConfig
	Timeouts       TimeoutConfig
}

// SubmitService judges problem submissions and records their outcome.
type SubmitService struct {
	judge          Judge
	testCases      TestCaseProvider
	submissionRepo repository.SubmissionRepository
	statusRepo     StatusStore
	cache          cache.Cache
	publisher      VerdictPublisher
	archive        ReportArchiver
	tasks          TaskQueue

	taskTopic      string
	maxCodeBytes   int
	idempotencyTTL time.Duration
	rateLimit      RateLimitConfig
	timeouts       TimeoutConfig
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	ProblemID      int64
	UserID         int64
	LanguageID     string
	SourceCode     string
	IdempotencyKey string
	ClientIP       string
}

// SubmissionDetail is what a caller sees for one submission.
type SubmissionDetail struct {
	Status     model.SubmissionStatus `json:"status"`
	Submission *model.Submission      `json:"submission,omitempty"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case provider is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 10 * time.Minute
	}
	return &SubmitService{
		judge:          cfg.Judge,
		testCases:      cfg.TestCases,
		submissionRepo: cfg.SubmissionRepo,
		statusRepo:     cfg.StatusRepo,
		cache:          cfg.Cache,
		publisher:      cfg.Publisher,
		archive:        cfg.Archive,
		tasks:          cfg.Tasks,
		taskTopic:      cfg.TaskTopic,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		rateLimit:      cfg.RateLimit,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Submit judges a submission synchronously and returns it with its results.
// Persistence runs afterwards and never fails the call.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*model.Submission, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return nil, err
	}

	idemKey := idempotencyCacheKey(input.UserID, input.IdempotencyKey)
	acquired, existingID, err := s.acquireIdempotency(ctx, idemKey)
	if err != nil {
		return nil, err
	}
	if !acquired && existingID != "" {
		detail, err := s.Get(ctx, input.UserID, existingID)
		if err != nil {
			return nil, err
		}
		if detail.Submission != nil {
			return detail.Submission, nil
		}
		return nil, appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
	}

	submission := &model.Submission{
		SubmissionID: uuid.NewString(),
		UserID:       input.UserID,
		ProblemID:    input.ProblemID,
		LanguageID:   normalizeLanguage(input.LanguageID),
		Code:         input.SourceCode,
		CreatedAt:    time.Now(),
	}
	if err := s.run(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, err
	}
	s.persist(ctx, submission)
	s.finalizeIdempotency(ctx, idemKey, submission.SubmissionID, acquired)
	return submission, nil
}

// Enqueue validates a submission and hands it to the judge task queue.
// A repeated idempotency key returns the status of the first enqueue.
func (s *SubmitService) Enqueue(ctx context.Context, input SubmitInput) (model.SubmissionStatus, error) {
	if err := s.validateInput(input); err != nil {
		return model.SubmissionStatus{}, err
	}
	if s.tasks == nil {
		return model.SubmissionStatus{}, appErr.New(appErr.ServiceUnavailable).WithMessage("async judging is not enabled")
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return model.SubmissionStatus{}, err
	}

	idemKey := idempotencyCacheKey(input.UserID, input.IdempotencyKey)
	acquired, existingID, err := s.acquireIdempotency(ctx, idemKey)
	if err != nil {
		return model.SubmissionStatus{}, err
	}
	if !acquired && existingID != "" {
		detail, err := s.Get(ctx, input.UserID, existingID)
		if err != nil {
			return model.SubmissionStatus{}, err
		}
		return detail.Status, nil
	}

	now := time.Now()
	task := model.JudgeTask{
		SubmissionID: uuid.NewString(),
		UserID:       input.UserID,
		ProblemID:    input.ProblemID,
		LanguageID:   normalizeLanguage(input.LanguageID),
		SourceCode:   input.SourceCode,
		CreatedAt:    now.Unix(),
	}
	status := model.SubmissionStatus{
		SubmissionID: task.SubmissionID,
		UserID:       task.UserID,
		Status:       model.StatusJudging,
		UpdatedAt:    now.Unix(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return model.SubmissionStatus{}, err
	}

	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.tasks.EnqueueTask(ctxMQ.ctx, task); err != nil {
		failed := failedStatus(status, err)
		if saveErr := s.saveStatus(ctx, failed); saveErr != nil {
			logger.Warn(ctx, "store failed status failed", zap.String("submission_id", task.SubmissionID), zap.Error(saveErr))
		}
		s.releaseIdempotency(ctx, idemKey, acquired)
		return model.SubmissionStatus{}, err
	}
	s.finalizeIdempotency(ctx, idemKey, task.SubmissionID, acquired)
	logger.Info(ctx, "judge task enqueued", zap.String("submission_id", task.SubmissionID), zap.Int64("problem_id", task.ProblemID))
	return status, nil
}

// HandleTask is the queue handler for enqueued submissions. Malformed tasks
// and judging failures are recorded and acknowledged, never retried. A
// redelivered task whose submission already reached a final state is
// acknowledged without judging again.
func (s *SubmitService) HandleTask(ctx context.Context, message *mq.Message) error {
	task, err := judgeRepo.DecodeTask(message)
	if err != nil {
		logger.Warn(ctx, "drop invalid judge task", zap.Error(err))
		return nil
	}
	if s.taskSettled(ctx, task) {
		logger.Info(ctx, "skip settled judge task", zap.String("submission_id", task.SubmissionID))
		return nil
	}

	createdAt := time.Unix(task.CreatedAt, 0)
	if task.CreatedAt == 0 {
		createdAt = time.Now()
	}
	submission := &model.Submission{
		SubmissionID: task.SubmissionID,
		UserID:       task.UserID,
		ProblemID:    task.ProblemID,
		LanguageID:   normalizeLanguage(task.LanguageID),
		Code:         task.SourceCode,
		CreatedAt:    createdAt,
	}
	if err := s.run(ctx, submission); err != nil {
		logger.Warn(ctx, "judge task failed", zap.String("submission_id", task.SubmissionID), zap.Error(err))
		failed := failedStatus(model.SubmissionStatus{SubmissionID: task.SubmissionID, UserID: task.UserID}, err)
		if saveErr := s.saveStatus(ctx, failed); saveErr != nil {
			logger.Error(ctx, "store failed status failed", zap.String("submission_id", task.SubmissionID), zap.Error(saveErr))
		}
		return nil
	}
	s.persist(ctx, submission)
	return nil
}

// taskSettled reports whether the task's submission is already Finished or
// Failed, consulting the database when the status has expired from the cache.
func (s *SubmitService) taskSettled(ctx context.Context, task model.JudgeTask) bool {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	status, err := s.statusRepo.Get(ctxCache.ctx, task.SubmissionID)
	ctxCache.cancel()
	if err == nil {
		return status.Status == model.StatusFinished || status.Status == model.StatusFailed
	}
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		logger.Warn(ctx, "load task status failed", zap.String("submission_id", task.SubmissionID), zap.Error(err))
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	_, err = s.submissionRepo.GetByID(ctxDB.ctx, task.SubmissionID, task.UserID)
	return err == nil
}

// RegisterWorker subscribes HandleTask to the task topic.
func (s *SubmitService) RegisterWorker(ctx context.Context, consumer mq.Consumer, opts *mq.SubscribeOptions) error {
	if consumer == nil {
		return fmt.Errorf("consumer is required")
	}
	if s.taskTopic == "" {
		return fmt.Errorf("task topic is required")
	}
	return consumer.SubscribeWithOptions(ctx, s.taskTopic, s.HandleTask, opts)
}

// Get returns a submission owned by userID, preferring the cached status.
func (s *SubmitService) Get(ctx context.Context, userID int64, submissionID string) (*SubmissionDetail, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}

	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	status, statusErr := s.statusRepo.Get(ctxCache.ctx, submissionID)
	ctxCache.cancel()
	cached := statusErr == nil
	if statusErr != nil && !appErr.Is(statusErr, appErr.SubmissionNotFound) {
		logger.Warn(ctx, "load cached status failed", zap.String("submission_id", submissionID), zap.Error(statusErr))
	}
	if cached && status.UserID != userID {
		return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	}
	if cached && status.Status != model.StatusFinished {
		return &SubmissionDetail{Status: status}, nil
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, submissionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			if cached {
				return &SubmissionDetail{Status: status}, nil
			}
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if !cached {
		status = finishedStatus(submission)
	}
	return &SubmissionDetail{Status: status, Submission: submission}, nil
}

// ListByProblem returns the caller's recent submissions for a problem.
func (s *SubmitService) ListByProblem(ctx context.Context, userID, problemID int64, languageID string) ([]model.Submission, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	list, err := s.submissionRepo.ListByProblem(ctxDB.ctx, repository.ListFilter{
		UserID:     userID,
		ProblemID:  problemID,
		LanguageID: normalizeLanguage(languageID),
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	if list == nil {
		list = []model.Submission{}
	}
	return list, nil
}

// run loads test cases and judges the submission, filling Results and Summary.
func (s *SubmitService) run(ctx context.Context, submission *model.Submission) error {
	cases, err := s.testCases.List(ctx, submission.ProblemID, submission.LanguageID)
	if err != nil {
		return err
	}
	verdict, err := s.judge.Judge(ctx, submission.LanguageID, submission.Code, cases)
	if err != nil {
		return err
	}
	submission.Results = verdict.Results
	submission.Summary = model.Summarize(verdict)
	return nil
}

// persist fans the finished submission out to every configured store.
func (s *SubmitService) persist(ctx context.Context, submission *model.Submission) {
	ctx = context.WithoutCancel(ctx)
	fields := []zap.Field{zap.String("submission_id", submission.SubmissionID)}

	var g errgroup.Group
	g.Go(func() error {
		ctxDB := withTimeout(ctx, s.timeouts.DB)
		defer ctxDB.cancel()
		err := s.submissionRepo.Create(ctxDB.ctx, submission)
		if errors.Is(err, repository.ErrSubmissionExists) {
			logger.Info(ctx, "submission already recorded", fields...)
			return nil
		}
		if err != nil {
			logger.Error(ctx, "save submission failed", append(fields, zap.Error(err))...)
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := s.saveStatus(ctx, finishedStatus(submission)); err != nil {
			logger.Warn(ctx, "cache submission status failed", append(fields, zap.Error(err))...)
			return err
		}
		return nil
	})
	if s.publisher != nil {
		g.Go(func() error {
			ctxMQ := withTimeout(ctx, s.timeouts.MQ)
			defer ctxMQ.cancel()
			event := model.VerdictEvent{
				SubmissionID: submission.SubmissionID,
				UserID:       submission.UserID,
				ProblemID:    submission.ProblemID,
				LanguageID:   submission.LanguageID,
				Status:       model.StatusFinished,
				Summary:      submission.Summary,
				CreatedAt:    time.Now().Unix(),
			}
			if err := s.publisher.PublishVerdict(ctxMQ.ctx, event); err != nil {
				logger.Warn(ctx, "publish verdict failed", append(fields, zap.Error(err))...)
				return err
			}
			return nil
		})
	}
	if s.archive != nil {
		g.Go(func() error {
			ctxStorage := withTimeout(ctx, s.timeouts.Storage)
			defer ctxStorage.cancel()
			if err := s.archive.Save(ctxStorage.ctx, *submission); err != nil {
				logger.Warn(ctx, "archive report failed", append(fields, zap.Error(err))...)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn(ctx, "submission persisted partially", fields...)
		return
	}
	logger.Info(ctx, "submission recorded", append(fields, zap.String("status", submission.Summary.Status))...)
}

func (s *SubmitService) validateInput(input SubmitInput) error {
	if input.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if input.UserID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.LanguageID) == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if s.maxCodeBytes > 0 && len(input.SourceCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return nil
}

func (s *SubmitService) saveStatus(ctx context.Context, status model.SubmissionStatus) error {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	return s.statusRepo.Save(ctxCache.ctx, status)
}

// idempotencyCacheKey scopes a client idempotency key to its user. It is empty
// when the client sent no key.
func idempotencyCacheKey(userID int64, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return fmt.Sprintf("%s%d:%s", idempotencyKeyPrefix, userID, key)
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, cacheKey string) (bool, string, error) {
	if cacheKey == "" || s.cache == nil {
		return true, "", nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, cacheKey, submissionID string, acquired bool) {
	if !acquired || cacheKey == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, cacheKey, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, cacheKey string, acquired bool) {
	if !acquired || cacheKey == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, cacheKey); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64, clientIP string) error {
	if s.cache == nil || s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.UserMax > 0 && userID > 0 {
		if err := s.checkRateCounter(ctxCache.ctx, fmt.Sprintf("%s%d", rateUserKeyPrefix, userID), s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.IncrWithTTL(ctx, key, s.rateLimit.Window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

func finishedStatus(submission *model.Submission) model.SubmissionStatus {
	return model.SubmissionStatus{
		SubmissionID: submission.SubmissionID,
		UserID:       submission.UserID,
		Status:       model.StatusFinished,
		Summary:      submission.Summary,
		UpdatedAt:    time.Now().Unix(),
	}
}

func failedStatus(base model.SubmissionStatus, err error) model.SubmissionStatus {
	base.Status = model.StatusFailed
	base.ErrorCode = int(appErr.GetCode(err))
	base.ErrorMessage = err.Error()
	base.UpdatedAt = time.Now().Unix()
	return base
}

func normalizeLanguage(languageID string) string {
	return strings.ToLower(strings.TrimSpace(languageID))
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
