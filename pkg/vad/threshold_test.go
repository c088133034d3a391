package vad_test

import (
	"math"
	"testing"

	"github.com/voxgate/voxgate/pkg/vad"
)

func newEstimator(t *testing.T, seed float64) *vad.ThresholdEstimator {
	t.Helper()
	est, err := vad.NewThresholdEstimator(seed, vad.DefaultEMAAlpha, vad.DefaultNoiseFloorMultiplier)
	if err != nil {
		t.Fatalf("NewThresholdEstimator: %v", err)
	}
	return est
}

func TestThresholdSeeding(t *testing.T) {
	est := newEstimator(t, 0.005)
	if est.NoiseFloor() <= 0 {
		t.Fatalf("noise floor = %v, want > 0 (degenerate startup threshold)", est.NoiseFloor())
	}
	if est.Threshold() != 0.005 {
		t.Fatalf("threshold = %v, want seed 0.005", est.Threshold())
	}
}

func TestThresholdInvalidParams(t *testing.T) {
	cases := []struct {
		name                    string
		seed, alpha, multiplier float64
	}{
		{"zero_seed", 0, 0.01, 5},
		{"negative_seed", -1, 0.01, 5},
		{"zero_alpha", 0.005, 0, 5},
		{"alpha_above_one", 0.005, 1.5, 5},
		{"zero_multiplier", 0.005, 0.01, 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := vad.NewThresholdEstimator(tt.seed, tt.alpha, tt.multiplier); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestThresholdEMARecurrence(t *testing.T) {
	est := newEstimator(t, 0.005)

	const alpha = vad.DefaultEMAAlpha
	floor := est.NoiseFloor()
	energies := []float64{0.002, 0.0, 0.004, 0.001, 0.003}
	for _, e := range energies {
		est.Update(e, false)
		floor = alpha*e + (1-alpha)*floor
		if math.Abs(est.NoiseFloor()-floor) > 1e-15 {
			t.Fatalf("noise floor = %v, want %v", est.NoiseFloor(), floor)
		}
		if want := vad.DefaultNoiseFloorMultiplier * floor; math.Abs(est.Threshold()-want) > 1e-15 {
			t.Fatalf("threshold = %v, want %v", est.Threshold(), want)
		}
	}
}

func TestThresholdFrozenDuringSpeech(t *testing.T) {
	est := newEstimator(t, 0.005)
	est.Update(0.002, false)
	floor := est.NoiseFloor()
	threshold := est.Threshold()

	// A run of loud speech frames must not move the floor or threshold.
	for i := 0; i < 50; i++ {
		est.Update(0.8, true)
	}
	if est.NoiseFloor() != floor {
		t.Fatalf("noise floor moved during speech: %v -> %v", floor, est.NoiseFloor())
	}
	if est.Threshold() != threshold {
		t.Fatalf("threshold moved during speech: %v -> %v", threshold, est.Threshold())
	}
}

func TestDecideBoundary(t *testing.T) {
	est := newEstimator(t, 0.005)

	// The decision is strict: energy equal to the bound is not speech.
	if est.Decide(0.005) {
		t.Error("Decide(threshold) = true, want false")
	}
	if !est.Decide(0.0051) {
		t.Error("Decide(just above threshold) = false, want true")
	}
	if est.Decide(0) {
		t.Error("Decide(0) = true, want false")
	}
}

func TestDecideSafetyBound(t *testing.T) {
	est := newEstimator(t, 0.005)

	// Drive the threshold artificially low; the 3× noise-floor bound must
	// still gate the decision.
	est.Reseed(1e-9)
	bound := 3 * est.NoiseFloor()
	if est.Decide(bound) {
		t.Errorf("Decide(3×floor = %v) = true, want false", bound)
	}
	if !est.Decide(bound * 1.1) {
		t.Errorf("Decide(above 3×floor) = false, want true")
	}
}

func TestReseed(t *testing.T) {
	est := newEstimator(t, 0.005)
	est.Update(0.002, false)
	floor := est.NoiseFloor()

	est.Reseed(0.2)
	if est.Threshold() != 0.2 {
		t.Fatalf("threshold after Reseed = %v, want 0.2", est.Threshold())
	}
	if est.NoiseFloor() != floor {
		t.Fatalf("Reseed moved the noise floor: %v -> %v", floor, est.NoiseFloor())
	}

	// Adaptation resumes from the current floor on the next non-speech frame.
	est.Update(0.002, false)
	if est.Threshold() == 0.2 {
		t.Fatal("threshold did not re-derive from the floor after Reseed")
	}
}
