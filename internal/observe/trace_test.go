package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTestTracer swaps the global provider for one with an in-memory
// exporter and restores it on cleanup.
func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestStartSpan_RecordsStageSpans(t *testing.T) {
	exp := installTestTracer(t)

	ctx, interaction := StartSpan(context.Background(), "pipeline.interaction")
	_, stage := StartSpan(ctx, "pipeline.transcribe")
	stage.End()
	interaction.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	// Syncer exports in end order: the stage span first.
	if spans[0].Name != "pipeline.transcribe" || spans[1].Name != "pipeline.interaction" {
		t.Errorf("span names = %q, %q", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("stage span is not a child of the interaction span")
	}
}

func TestCorrelationID(t *testing.T) {
	installTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "pipeline.interaction")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32 hex chars", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not lowercase hex", cid)
	}
}

func TestLogger_TraceAttributes(t *testing.T) {
	installTestTracer(t)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(slog.Default()) })

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without a span carries trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "pipeline.respond")
	defer span.End()
	Logger(ctx).Info("in span")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) {
		t.Errorf("log output missing trace_id, got: %s", out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Errorf("log output missing span_id, got: %s", out)
	}
}
