package command

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
)

func TestSensitivityMultiplier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sensitivity int
		want        float64
	}{
		{1, 3.0},
		{5, 1.8},
		{9, 0.6},
		{10, 0.5}, // clamped at the floor
	}
	for _, tc := range tests {
		got := SensitivityMultiplier(tc.sensitivity)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("SensitivityMultiplier(%d) = %v, want %v", tc.sensitivity, got, tc.want)
		}
	}
}

func TestNewProfile_ThresholdInvariant(t *testing.T) {
	t.Parallel()
	for s := 1; s <= 10; s++ {
		p := NewProfile(0.015, s)
		if math.Abs(p.Threshold-p.NoiseFloor*p.Multiplier) > 1e-12 {
			t.Errorf("sensitivity %d: threshold %v != floor %v * multiplier %v",
				s, p.Threshold, p.NoiseFloor, p.Multiplier)
		}
	}
}

func TestCalibration_SwapVisibleToReaders(t *testing.T) {
	t.Parallel()
	c := NewCalibration(5)
	initial := c.Current()
	if initial.Threshold <= 0 {
		t.Fatal("seed profile should have a positive threshold")
	}

	p := NewProfile(0.08, 5)
	c.Set(p)
	got := c.Current()
	if got.NoiseFloor != 0.08 {
		t.Errorf("noise floor = %v, want 0.08", got.NoiseFloor)
	}
}

func TestCalibrator_Run(t *testing.T) {
	t.Parallel()
	router := audio.NewRouter()

	cal := NewCalibrator(5, 150*time.Millisecond)

	// Feed frames while calibration samples.
	stop := make(chan struct{})
	go func() {
		f := frameAt(0.01)
		for {
			select {
			case <-stop:
				return
			default:
				router.Dispatch(f)
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()
	defer close(stop)

	p, err := cal.Run(context.Background(), router)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Constant-amplitude frames make the mean deterministic up to
	// quantisation of the int16 amplitude.
	if p.NoiseFloor < 0.005 || p.NoiseFloor > 0.02 {
		t.Errorf("noise floor = %v, want about 0.01", p.NoiseFloor)
	}
	if p.Threshold != p.NoiseFloor*p.Multiplier {
		t.Errorf("threshold invariant broken: %v != %v * %v", p.Threshold, p.NoiseFloor, p.Multiplier)
	}
}

func TestCalibrator_RestoresPreviousConsumer(t *testing.T) {
	t.Parallel()
	router := audio.NewRouter()
	prev := &countingConsumer{}
	router.Attach(prev)

	cal := NewCalibrator(5, 20*time.Millisecond)
	_, _ = cal.Run(context.Background(), router)

	if router.Active() != prev {
		t.Error("calibration must restore the previously attached consumer")
	}
}

func TestCalibrator_NoFrames(t *testing.T) {
	t.Parallel()
	router := audio.NewRouter()
	cal := NewCalibrator(5, 30*time.Millisecond)

	_, err := cal.Run(context.Background(), router)
	if !errors.Is(err, ErrCalibrationFailed) {
		t.Errorf("error = %v, want ErrCalibrationFailed", err)
	}
}

func TestCalibrator_ContextCancelled(t *testing.T) {
	t.Parallel()
	router := audio.NewRouter()
	cal := NewCalibrator(5, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cal.Run(ctx, router)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

type countingConsumer struct{ n int }

func (c *countingConsumer) Consume(audio.Frame) { c.n++ }
