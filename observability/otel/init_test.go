package otel

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,broken, =skip,x-team=swaps")
	if len(headers) != 2 {
		t.Fatalf("unexpected headers: %v", headers)
	}
	if headers["authorization"] != "Bearer abc" || headers["x-team"] != "swaps" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestInitWithoutSignals(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); !errors.Is(err, ErrServiceNameRequired) {
		t.Fatalf("expected ErrServiceNameRequired, got %v", err)
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "fixedrated"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplerRatio(t *testing.T) {
	if got := sampler(0).Description(); got != sdktrace.ParentBased(sdktrace.AlwaysSample()).Description() {
		t.Fatalf("zero ratio should sample everything, got %s", got)
	}
	if got := sampler(0.25).Description(); got != sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description() {
		t.Fatalf("unexpected sampler %s", got)
	}
}
