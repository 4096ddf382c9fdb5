package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Environments(t *testing.T) {
	for _, env := range []string{"local", "dev", "docker", "prod"} {
		t.Run(env, func(t *testing.T) {
			l, err := NewLogger(env, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l == nil {
				t.Fatal("nil logger")
			}
		})
	}

	if _, err := NewLogger("staging", ""); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}

	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewSlog_WritesToZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewSlog(zap.New(core))

	s.Info("extracted text", "pages", 3)
	s.Debug("dropped below level")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "extracted text" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["pages"]; got != int64(3) {
		t.Errorf("expected pages=3, got %v (%T)", got, got)
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	if FromContext(context.Background(), nil) == nil {
		t.Fatal("expected nop logger")
	}
	if FromContext(context.Background(), base) != base {
		t.Error("expected fallback logger")
	}

	ctx := ContextWithLogger(context.Background(), base)
	ctx = With(ctx, zap.String("request_id", "abc"))
	FromContext(ctx, nil).Info("hello")

	if logs.Len() != 1 || logs.All()[0].ContextMap()["request_id"] != "abc" {
		t.Errorf("expected request_id field, got %+v", logs.All())
	}
}
