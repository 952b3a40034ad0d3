package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"pandemic-dashboard/internal/config"
)

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggerConfig{Level: "debug", Format: "json"})
	logger.Debug("hello", "k", "v")

	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"hello"`)) {
		t.Errorf("expected JSON output, got %s", buf.String())
	}

	buf.Reset()
	logger = newLogger(&buf, config.LoggerConfig{Level: "warn", Format: "text"})
	logger.Info("dropped")
	logger.Warn("kept")

	if bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Error("info should be filtered at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("msg=kept")) {
		t.Errorf("expected text output, got %s", buf.String())
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := GetRequestID(ctx); got != "abc" {
		t.Errorf("GetRequestID() = %q, want abc", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q", got)
	}
}

func TestSpan_Nesting(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "parent")
	_, child := StartSpan(ctx, "child")

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.ParentID != parent.SpanID {
		t.Error("child should reference parent span")
	}
	if len(parent.SpanID) != 16 {
		t.Errorf("span ID length = %d, want 16", len(parent.SpanID))
	}
}

func TestSpan_FinishLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggerConfig{Level: "debug", Format: "text"})

	ctx, span := StartSpan(context.Background(), "reload")
	span.SetTag("records", "3")
	span.SetError(errors.New("backend down"))
	span.Finish(logger)
	span.Finish(logger)

	out := buf.String()
	if bytes.Count(buf.Bytes(), []byte("span finished")) != 1 {
		t.Errorf("span should be logged once, got %s", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte("backend down")) {
		t.Error("span log should carry the error")
	}
	if span.Status != SpanStatusError {
		t.Errorf("status = %s, want ERROR", span.Status)
	}

	annotated := LoggerFrom(WithRequestID(ctx, "req-1"), logger)
	buf.Reset()
	annotated.Info("x")
	if !bytes.Contains(buf.Bytes(), []byte("request_id=req-1")) || !bytes.Contains(buf.Bytes(), []byte("trace_id="+span.TraceID)) {
		t.Errorf("expected request and trace IDs, got %s", buf.String())
	}
}

func TestContextHandler_AddsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggerConfig{Level: "info", Format: "json"})

	ctx, span := StartSpan(WithRequestID(context.Background(), "req-9"), "page")
	logger.InfoContext(ctx, "rendered")

	for _, want := range []string{`"request_id":"req-9"`, `"trace_id":"` + span.TraceID + `"`, `"service":"pandemic-dashboard"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %s in %s", want, buf.String())
		}
	}

	buf.Reset()
	logger.Info("no context")
	if bytes.Contains(buf.Bytes(), []byte("request_id")) {
		t.Errorf("plain calls should carry no request ID, got %s", buf.String())
	}
}

func TestTrimSource(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggerConfig{Level: "info", Format: "text"})
	logger.Info("where")

	if !bytes.Contains(buf.Bytes(), []byte("observability/observability_test.go")) {
		t.Errorf("expected a trimmed source path, got %s", buf.String())
	}
}

func TestStartSpan_JoinsOTelTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := newTracerProvider(resource.Empty(), 1, sdktrace.NewSimpleSpanProcessor(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, otelSpan := tp.Tracer("test").Start(context.Background(), "GET /sse/page")
	_, span := StartSpan(ctx, "dashboard.reload")
	otelSpan.End()

	if want := otelSpan.SpanContext().TraceID().String(); span.TraceID != want {
		t.Errorf("TraceID = %q, want %q", span.TraceID, want)
	}
	if got := len(exporter.GetSpans()); got != 1 {
		t.Errorf("expected 1 exported span, got %d", got)
	}
}

func TestNewTracerProvider_Sampling(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := newTracerProvider(resource.Empty(), 0, sdktrace.NewSimpleSpanProcessor(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, s := tp.Tracer("test").Start(context.Background(), "dropped")
	s.End()

	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("ratio 0 should drop root spans, exported %d", got)
	}
}

func TestInitTracing(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	logger := newLogger(io.Discard, config.LoggerConfig{Level: "info", Format: "json"})

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("InitTracing(disabled) error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("disabled shutdown error = %v", err)
	}
	if fields := otel.GetTextMapPropagator().Fields(); !slices.Contains(fields, "traceparent") {
		t.Errorf("expected the trace context propagator, got fields %v", fields)
	}

	shutdown, err = InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Protocol:    "http/protobuf",
		ServiceName: "pandemic-dashboard",
		SampleRatio: 1,
	}, logger)
	if err != nil {
		t.Fatalf("InitTracing(enabled) error = %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("expected an SDK tracer provider, got %T", otel.GetTracerProvider())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}

	if _, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Protocol: "thrift"}, logger); err == nil {
		t.Error("expected an unsupported protocol to fail")
	}
}
