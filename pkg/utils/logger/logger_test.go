package logger_test

import (
	"context"
	"testing"

	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetLogger(zap.New(core))
	defer logger.SetLogger(nil)

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = context.WithValue(ctx, contextkey.RequestID, "req-1")
	ctx = context.WithValue(ctx, contextkey.UserID, int64(7))

	logger.Info(ctx, "verdict ready", zap.Int("passed", 2))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "trace-1" {
		t.Fatalf("expected trace_id, got %v", fields["trace_id"])
	}
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id, got %v", fields["request_id"])
	}
	if fields["user_id"] != int64(7) {
		t.Fatalf("expected user_id, got %v", fields["user_id"])
	}
	if fields["passed"] != int64(2) {
		t.Fatalf("expected passed field, got %v", fields["passed"])
	}
}

func TestNilGlobalLoggerIsNoop(t *testing.T) {
	logger.SetLogger(nil)
	logger.Warn(context.Background(), "dropped")
	if err := logger.Sync(); err != nil {
		t.Fatalf("expected nil sync error, got %v", err)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := logger.NewLogger(logger.Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
