package otel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSetupIsNoopWhenInactive(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
	}{
		{"no endpoint", Settings{ServiceName: "galaxy-test", Enabled: true}},
		{"disabled", Settings{ServiceName: "galaxy-test", Endpoint: "http://localhost:4318"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.s.Active() {
				t.Fatal("expected inactive settings")
			}
			shutdown, err := Setup(context.Background(), tt.s)
			if err != nil {
				t.Fatalf("Setup returned error: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("noop shutdown returned error: %v", err)
			}
		})
	}
}

func TestSetupRejectsBadSampleRatio(t *testing.T) {
	_, err := Setup(context.Background(), Settings{Endpoint: "http://localhost:4318", Enabled: true, SampleRatio: 2})
	if !errors.Is(err, ErrInvalidSampleRatio) {
		t.Fatalf("expected ErrInvalidSampleRatio, got %v", err)
	}
}

func TestSamplerFollowsRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := Settings{SampleRatio: tt.ratio}.sampler().Description()
		if !strings.HasPrefix(got, "ParentBased{root:"+tt.want) {
			t.Errorf("ratio %v: expected sampler %s, got %s", tt.ratio, tt.want, got)
		}
	}
}
