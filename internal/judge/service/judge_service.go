package service

import (
	"context"
	"fmt"
	"time"

	"codejudge/internal/judge/judgeclient"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/reconciler"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Encoder builds judge submissions from user code and test cases.
type Encoder interface {
	Encode(languageID, userCode string, testCases []model.TestCase) (model.SubmissionBatch, error)
}

// JudgeClient submits batches to the remote judge and waits for their results.
type JudgeClient interface {
	SubmitBatch(ctx context.Context, submissions []model.SubmissionPayload) ([]string, error)
	PollUntilResolved(ctx context.Context, tokens []string, maxAttempts int, interval time.Duration) ([]model.ResolvedSubmission, error)
}

// Service runs one judging flow per call: encode, submit, poll, reconcile.
type Service struct {
	encoder      Encoder
	client       JudgeClient
	pollAttempts int
	pollInterval time.Duration
	judgeTimeout time.Duration
	slotWait     time.Duration
	sem          chan struct{}
}

// Config holds service dependencies and settings.
type Config struct {
	Encoder      Encoder
	Client       JudgeClient
	PollAttempts int
	PollInterval time.Duration
	// JudgeTimeout bounds a whole run including polling. Zero disables it.
	JudgeTimeout time.Duration
	// MaxInFlight caps concurrent runs. Zero means unbounded.
	MaxInFlight int
	SlotWait    time.Duration
}

// NewService creates a new judging service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	attempts := cfg.PollAttempts
	if attempts <= 0 {
		attempts = judgeclient.DefaultPollAttempts
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = judgeclient.DefaultPollInterval
	}
	slotWait := cfg.SlotWait
	if slotWait <= 0 {
		slotWait = 2 * time.Second
	}
	s := &Service{
		encoder:      cfg.Encoder,
		client:       cfg.Client,
		pollAttempts: attempts,
		pollInterval: interval,
		judgeTimeout: cfg.JudgeTimeout,
		slotWait:     slotWait,
	}
	if cfg.MaxInFlight > 0 {
		s.sem = make(chan struct{}, cfg.MaxInFlight)
	}
	return s, nil
}

// Judge runs every test case against userCode and returns the aggregated verdict.
// Errors from any stage are returned unchanged; there is no partial verdict.
func (s *Service) Judge(ctx context.Context, languageID, userCode string, testCases []model.TestCase) (*model.Verdict, error) {
	batch, err := s.encoder.Encode(languageID, userCode, testCases)
	if err != nil {
		return nil, err
	}

	if err := s.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSlot()

	ctxJudge := ctx
	if s.judgeTimeout > 0 {
		var cancel context.CancelFunc
		ctxJudge, cancel = context.WithTimeout(ctx, s.judgeTimeout)
		defer cancel()
	}

	start := time.Now()
	tokens, err := s.client.SubmitBatch(ctxJudge, batch.Submissions)
	if err != nil {
		logger.Warn(ctx, "submit batch failed", zap.String("language_id", languageID), zap.Error(err))
		return nil, err
	}
	logger.Info(ctx, "batch submitted",
		zap.String("language_id", languageID),
		zap.Int("engine_id", batch.EngineID),
		zap.Int("total_tests", batch.TotalTests),
	)

	resolved, err := s.client.PollUntilResolved(ctxJudge, tokens, s.pollAttempts, s.pollInterval)
	if err != nil {
		logger.Warn(ctx, "poll batch failed",
			zap.Int("tokens", len(tokens)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	verdict := model.NewVerdict(reconciler.Reconcile(resolved, testCases))
	logger.Info(ctx, "judging finished",
		zap.String("language_id", languageID),
		zap.Int("passed", verdict.PassedTests),
		zap.Int("failed", verdict.FailedTests),
		zap.Duration("elapsed", time.Since(start)),
	)
	return verdict, nil
}

func (s *Service) acquireSlot(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	timer := time.NewTimer(s.slotWait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "waiting for judge slot canceled")
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull)
	}
}

func (s *Service) releaseSlot() {
	if s.sem == nil {
		return
	}
	select {
	case <-s.sem:
	default:
	}
}
