package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	judgecontroller "codejudge/internal/judge/controller"
	"codejudge/internal/judge/encoder"
	"codejudge/internal/judge/judgeclient"
	"codejudge/internal/judge/language"
	judgerepo "codejudge/internal/judge/repository"
	judgeservice "codejudge/internal/judge/service"
	problemrepo "codejudge/internal/problem/repository"
	submitcontroller "codejudge/internal/submit/controller"
	submitrepo "codejudge/internal/submit/repository"
	submitservice "codejudge/internal/submit/service"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	submissionRepo := submitrepo.NewSubmissionRepository(mysqlDB)
	if err := submissionRepo.EnsureSchema(ctx); err != nil {
		logger.Error(ctx, "ensure submission schema failed", zap.Error(err))
		return
	}

	// Optional sinks stay nil interfaces when their backend is not configured.
	var (
		publisher submitservice.VerdictPublisher
		tasks     submitservice.TaskQueue
		archive   submitservice.ReportArchiver
		mqClient  *mq.KafkaQueue
	)
	if appCfg.Kafka.kafkaEnabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		pingCtx, cancelPing := context.WithTimeout(ctx, defaultKafkaPingTimeout)
		if err := mqClient.Ping(pingCtx); err != nil {
			logger.Warn(ctx, "kafka brokers unreachable at startup", zap.Error(err))
		}
		cancelPing()
		publisher = judgerepo.NewMQVerdictPublisher(mqClient, appCfg.Kafka.VerdictTopic)
		tasks = judgerepo.NewMQTaskQueue(mqClient, appCfg.Kafka.TaskTopic)
	} else {
		logger.Warn(ctx, "kafka brokers not configured, verdict events and async judging disabled")
	}

	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Report.Bucket); err != nil {
			logger.Error(ctx, "ensure report bucket failed", zap.Error(err))
			return
		}
		archive = judgerepo.NewReportArchive(objStorage, appCfg.Report.Bucket)
	} else {
		logger.Warn(ctx, "minio endpoint not configured, report archive disabled")
	}

	registry := language.Default()
	client := judgeclient.New(judgeclient.Config{
		BaseURL: appCfg.Judge0.BaseURL,
		APIKey:  appCfg.Judge0.APIKey,
		APIHost: appCfg.Judge0.APIHost,
		Headers: appCfg.Judge0.Headers,
		Timeout: appCfg.Judge0.Timeout,
	})
	judgeSvc, err := judgeservice.NewService(judgeservice.Config{
		Encoder:      encoder.New(registry),
		Client:       client,
		PollAttempts: appCfg.Judge0.PollAttempts,
		PollInterval: appCfg.Judge0.PollInterval,
		JudgeTimeout: appCfg.Judge0.JudgeTimeout,
		MaxInFlight:  appCfg.Judge0.MaxInFlight,
		SlotWait:     appCfg.Judge0.SlotWait,
	})
	if err != nil {
		logger.Error(ctx, "init judge service failed", zap.Error(err))
		return
	}

	sub := appCfg.Submission
	testCases := problemrepo.NewTestCaseRepositoryWithTTL(mysqlDB, redisCache, sub.TestCaseTTL, sub.TestCaseNilTTL)
	submitSvc, err := submitservice.NewSubmitService(submitservice.Config{
		Judge:          judgeSvc,
		TestCases:      testCases,
		SubmissionRepo: submissionRepo,
		StatusRepo:     judgerepo.NewStatusRepository(redisCache, sub.StatusTTL),
		Cache:          redisCache,
		Publisher:      publisher,
		Archive:        archive,
		Tasks:          tasks,
		TaskTopic:      appCfg.Kafka.TaskTopic,
		MaxCodeBytes:   sub.MaxCodeBytes,
		IdempotencyTTL: sub.IdempotencyTTL,
		RateLimit: submitservice.RateLimitConfig{
			UserMax: sub.UserMax,
			IPMax:   sub.IPMax,
			Window:  sub.Window,
		},
		Timeouts: submitservice.TimeoutConfig{
			DB:      sub.DBTimeout,
			Cache:   sub.CacheTimeout,
			MQ:      sub.MQTimeout,
			Storage: sub.StorageTimeout,
		},
	})
	if err != nil {
		logger.Error(ctx, "init submit service failed", zap.Error(err))
		return
	}

	if mqClient != nil {
		if err := submitSvc.RegisterWorker(ctx, mqClient, appCfg.Kafka.subscribeOptions()); err != nil {
			logger.Error(ctx, "subscribe judge tasks failed", zap.Error(err))
			return
		}
		if err := mqClient.Start(); err != nil {
			logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
			return
		}
	}

	verifier := commonmw.NewTokenVerifier(appCfg.Auth.Secret, appCfg.Auth.Issuer, redisCache)
	limiter := commonmw.NewRateLimiter(redisCache, appCfg.RateLimit.Timeout)
	httpServer := buildHTTPServer(appCfg, routes{
		judge: judgecontroller.NewJudgeController(registry, judgeSvc, judgecontroller.RunLimits{
			MaxCodeBytes: appCfg.Run.MaxCodeBytes,
			MaxTestCases: appCfg.Run.MaxTestCases,
		}),
		submit:   submitcontroller.NewSubmitController(submitSvc),
		verifier: verifier,
		limiter:  limiter,
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
}

type routes struct {
	judge    *judgecontroller.JudgeController
	submit   *submitcontroller.SubmitController
	verifier *commonmw.TokenVerifier
	limiter  *commonmw.RateLimiter
}

func buildHTTPServer(cfg *AppConfig, r routes) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())
	registerRoutes(router, cfg.RateLimit, r)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func registerRoutes(router gin.IRouter, limits RouteRateLimitConfig, r routes) {
	api := router.Group("/api/v1")
	api.GET("/languages", r.judge.Languages)
	api.POST("/judge/run",
		commonmw.RateLimitMiddleware(r.limiter, "judge.run", commonmw.RateLimitPolicy{
			Window: limits.Window,
			IPMax:  limits.IPMax,
		}),
		r.judge.Run,
	)

	authed := api.Group("")
	authed.Use(commonmw.AuthMiddleware(r.verifier))
	authed.POST("/submissions", r.submit.Create)
	authed.GET("/submissions/:id",
		commonmw.RateLimitMiddleware(r.limiter, "submission.get", commonmw.RateLimitPolicy{
			Window:  limits.Window,
			UserMax: limits.PollUserMax,
		}),
		r.submit.Get,
	)
	authed.GET("/problems/:id/submissions", r.submit.ListByProblem)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
