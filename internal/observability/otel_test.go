package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tbourn/go-memes-bot/internal/config"
)

func keepOTelGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledConfig() config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "memebot-test",
		SampleRatio: 1,
	}
}

func TestSetupOTel_DisabledInstallsNothing(t *testing.T) {
	keepOTelGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "dev")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing replaced the provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTel_InstallsProviderAndW3CPropagation(t *testing.T) {
	keepOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabledConfig(), "1.2.3")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T", otel.GetTracerProvider())
	}

	ctx, span := Tracer().Start(context.Background(), "evaluate")
	defer span.End()
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if !strings.HasPrefix(carrier.Get("traceparent"), "00-"+span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent = %q", carrier.Get("traceparent"))
	}
}

func TestSetupOTel_TLSAndHeaders(t *testing.T) {
	keepOTelGlobals(t)

	cfg := enabledConfig()
	cfg.Insecure = false
	cfg.Headers = map[string]string{"api-key": "k"}
	if n := len(exporterOptions(cfg)); n != 3 {
		t.Fatalf("options = %d; want endpoint, tls and headers", n)
	}

	shutdown, err := SetupOTel(context.Background(), cfg, "1.2.3")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown without spans: %v", err)
	}
}

func TestSetupOTel_ResourceIdentifiesInstance(t *testing.T) {
	keepOTelGlobals(t)

	orig := botResource
	t.Cleanup(func() { botResource = orig })
	var got *resource.Resource
	botResource = func(ctx context.Context, service, version, instance string) (*resource.Resource, error) {
		r, err := orig(ctx, service, version, instance)
		got = r
		return r, err
	}

	shutdown, err := SetupOTel(context.Background(), enabledConfig(), "9.9.9")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	attrs := map[string]string{}
	for _, kv := range got.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs[string(semconv.ServiceNameKey)] != "memebot-test" || attrs[string(semconv.ServiceVersionKey)] != "9.9.9" {
		t.Fatalf("resource = %v", attrs)
	}
	if len(attrs[string(semconv.ServiceInstanceIDKey)]) != 36 {
		t.Fatalf("instance id = %q", attrs[string(semconv.ServiceInstanceIDKey)])
	}
}

func TestSetupOTel_FailuresLeaveGlobalsAlone(t *testing.T) {
	keepOTelGlobals(t)
	origExp, origRes := startExporter, botResource
	t.Cleanup(func() { startExporter, botResource = origExp, origRes })

	cases := map[string]func(){
		"exporter": func() {
			startExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("collector down")
			}
		},
		"resource": func() {
			botResource = func(context.Context, string, string, string) (*resource.Resource, error) {
				return nil, errors.New("bad attrs")
			}
		},
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			startExporter, botResource = origExp, origRes
			breakIt()
			tp := otel.GetTracerProvider()
			prop := otel.GetTextMapPropagator()

			if _, err := SetupOTel(context.Background(), enabledConfig(), "v"); err == nil {
				t.Fatalf("expected error")
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestPipelineCollectorsRegistered(t *testing.T) {
	Evaluations.WithLabelValues("skipped", "below_threshold").Inc()
	if testutil.ToFloat64(Evaluations.WithLabelValues("skipped", "below_threshold")) < 1 {
		t.Fatalf("evaluation counter not incremented")
	}
	if n := testutil.CollectAndCount(DispatchQueueDepth); n != 1 {
		t.Fatalf("queue depth series = %d", n)
	}
}
