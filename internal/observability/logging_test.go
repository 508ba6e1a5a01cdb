package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/reportbuilder/internal/config"
	"github.com/pitabwire/reportbuilder/model"
)

// newTestLogger creates a logger that writes JSON to a buffer for assertion.
func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level     string
		enabled   zapcore.Level
		suppressed zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.InvalidLevel},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
		{"chatty", zapcore.InfoLevel, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tt.level})
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tt.level, err)
			}
			defer logger.Sync()

			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%s should be enabled at %q", tt.enabled, tt.level)
			}
			if tt.suppressed != zapcore.InvalidLevel && logger.Core().Enabled(tt.suppressed) {
				t.Errorf("%s should be suppressed at %q", tt.suppressed, tt.level)
			}
		})
	}
}

func TestWithLogger_and_LoggerFrom(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithLogger(context.Background(), logger)

	got := LoggerFrom(ctx, nil)
	if got != logger {
		t.Error("LoggerFrom should return the stored logger")
	}
}

func TestLoggerFrom_fallback(t *testing.T) {
	fallback := zap.NewNop()
	got := LoggerFrom(context.Background(), fallback)
	if got != fallback {
		t.Error("LoggerFrom should return fallback when no logger in context")
	}
}

func authorContext() *model.RequestContext {
	return &model.RequestContext{
		TenantID:      "acme",
		SubjectID:     "ana",
		Roles:         []string{"report_author"},
		CorrelationID: "corr-save-1",
		TraceID:       "4bf92f3577b34da6a3ce929d0e0e4736",
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	return entry
}

func TestRequestLogger_enrichesWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	ctx := model.WithRequestContext(context.Background(), authorContext())
	ctx = WithLogger(ctx, logger)

	RequestLogger(ctx, zap.NewNop()).Info("report saved")
	entry := decodeEntry(t, &buf)

	checks := map[string]string{
		"tenant_id":      "acme",
		"subject_id":     "ana",
		"correlation_id": "corr-save-1",
		"trace_id":       "4bf92f3577b34da6a3ce929d0e0e4736",
		"msg":            "report saved",
		"level":          "info",
	}
	for key, want := range checks {
		got, ok := entry[key].(string)
		if !ok {
			t.Errorf("missing field %q in log entry", key)
			continue
		}
		if got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if _, exists := entry["span_id"]; exists {
		t.Error("span_id should not be present without an active span")
	}
}

func TestRequestLogger_activeSpan(t *testing.T) {
	setupTestTracer(t)
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	ctx, span := StartSpan(context.Background(), "report.save")
	defer span.End()
	ctx = model.WithRequestContext(ctx, authorContext())

	RequestLogger(ctx, logger).Info("report saved")
	entry := decodeEntry(t, &buf)

	want := span.SpanContext().SpanID().String()
	if got := entry["span_id"]; got != want {
		t.Errorf("span_id = %v, want %q", got, want)
	}
}

func TestRequestLogger_noTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	rctx := authorContext()
	rctx.TraceID = ""
	ctx := model.WithRequestContext(context.Background(), rctx)

	RequestLogger(ctx, logger).Info("report session opened")
	if _, exists := decodeEntry(t, &buf)["trace_id"]; exists {
		t.Error("trace_id should not be present when empty")
	}
}

func TestRequestLogger_noRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	RequestLogger(context.Background(), logger).Info("catalog reloaded")
	entry := decodeEntry(t, &buf)

	if entry["msg"] != "catalog reloaded" {
		t.Errorf("msg = %q, want catalog reloaded", entry["msg"])
	}
	if _, exists := entry["tenant_id"]; exists {
		t.Error("tenant_id should not be present without RequestContext")
	}
}

func TestRedactBody_tokenClaims(t *testing.T) {
	claims := map[string]any{
		"sub":          "ana",
		"tenant_id":    "acme",
		"email":        "ana@acme.test",
		"access_token": "eyJhbGciOi.payload.sig",
		"realm_access": map[string]any{
			"roles":  []any{"report_author"},
			"secret": "s3cret",
		},
	}

	redacted := RedactBody(claims, nil)
	if redacted["sub"] != "ana" || redacted["tenant_id"] != "acme" {
		t.Errorf("identity claims = %v/%v, want ana/acme", redacted["sub"], redacted["tenant_id"])
	}
	if redacted["email"] != "ana@acme.test" {
		t.Errorf("email = %v, should not be redacted by default", redacted["email"])
	}
	if redacted["access_token"] != "[REDACTED]" {
		t.Errorf("access_token = %v, want [REDACTED]", redacted["access_token"])
	}
	realm, ok := redacted["realm_access"].(map[string]any)
	if !ok {
		t.Fatal("realm_access should stay a nested map")
	}
	if realm["secret"] != "[REDACTED]" {
		t.Errorf("realm_access.secret = %v, want [REDACTED]", realm["secret"])
	}
	if roles, _ := realm["roles"].([]any); len(roles) != 1 || roles[0] != "report_author" {
		t.Errorf("realm_access.roles = %v, want [report_author]", realm["roles"])
	}
	if claims["access_token"] != "eyJhbGciOi.payload.sig" {
		t.Errorf("original claims were mutated: access_token = %v", claims["access_token"])
	}
}

func TestRedactBody_configuredClaims(t *testing.T) {
	claims := map[string]any{
		"sub":   "ana",
		"email": "ana@acme.test",
		"phone": "555-1234",
	}

	redacted := RedactBody(claims, []string{"email", "phone"})
	tests := map[string]any{
		"sub":   "ana",
		"email": "[REDACTED]",
		"phone": "[REDACTED]",
	}
	for key, want := range tests {
		if redacted[key] != want {
			t.Errorf("%s = %v, want %v", key, redacted[key], want)
		}
	}
}

func TestRedactBody_nil(t *testing.T) {
	if result := RedactBody(nil, nil); result != nil {
		t.Errorf("RedactBody(nil) = %v, want nil", result)
	}
}
