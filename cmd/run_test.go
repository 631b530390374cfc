package cmd

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/smartbin/internal/hardware"
)

type recordingLEDs struct {
	status []bool
}

func (r *recordingLEDs) SetLED(led hardware.LED, on bool) error {
	if led == hardware.StatusLED {
		r.status = append(r.status, on)
	}
	return nil
}

func TestWarmUpStopsOnCancellation(t *testing.T) {
	leds := &recordingLEDs{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if warmUp(ctx, leds, time.Hour, zap.NewNop()) {
		t.Fatal("expected warm-up to report cancellation")
	}
	if time.Since(start) > time.Second {
		t.Fatal("warm-up ignored cancellation")
	}
	if len(leds.status) != 2 || !leds.status[0] || leds.status[1] {
		t.Fatalf("expected status LED on then off, got %v", leds.status)
	}
}

func TestWarmUpCompletes(t *testing.T) {
	leds := &recordingLEDs{}
	if !warmUp(context.Background(), leds, time.Millisecond, zap.NewNop()) {
		t.Fatal("expected warm-up to complete")
	}
	if len(leds.status) != 2 || leds.status[1] {
		t.Fatalf("expected status LED cleared, got %v", leds.status)
	}
}
