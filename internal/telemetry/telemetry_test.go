package telemetry

import (
	"context"
	"testing"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Init(context.Background(), Config{ServiceName: "moviefinder"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSampleRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.25, 0.25},
		{3, 1},
	}
	for _, tt := range tests {
		if got := sampleRate(tt.in); got != tt.want {
			t.Errorf("sampleRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
