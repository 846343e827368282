/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNewSamplerRootDecisions(t *testing.T) {
	tests := []struct {
		rate float64
		want sdktrace.SamplingDecision
	}{
		{1.0, sdktrace.RecordAndSample},
		{2.0, sdktrace.RecordAndSample},
		{0.0, sdktrace.Drop},
		{-1.0, sdktrace.Drop},
	}

	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0x01},
		Name:          "scheduler.evaluate",
	}
	for _, tt := range tests {
		got := newSampler(tt.rate).ShouldSample(params).Decision
		if got != tt.want {
			t.Errorf("rate %v: decision = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestNewSamplerFollowsSampledParent(t *testing.T) {
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	params := sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "playback.session",
	}

	if got := newSampler(0).ShouldSample(params).Decision; got != sdktrace.RecordAndSample {
		t.Fatalf("child of a sampled span should be sampled, got %v", got)
	}
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, span := StartSpan(context.Background(), TracerScheduler, "noop")
	RecordError(span, errors.New("ignored"))
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
