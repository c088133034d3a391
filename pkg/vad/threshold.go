package vad

import "fmt"

const (
	// DefaultEMAAlpha is the default decay rate of the noise-floor
	// exponential moving average.
	DefaultEMAAlpha = 0.01

	// DefaultNoiseFloorMultiplier scales the noise floor into the adaptive
	// decision threshold.
	DefaultNoiseFloorMultiplier = 5.0

	// DefaultEnergyThreshold is the default adaptive-threshold seed.
	DefaultEnergyThreshold = 0.005

	// noiseFloorSeed is the initial noise-floor estimate. It is small but
	// nonzero so the decision threshold is never degenerate at startup.
	noiseFloorSeed = 0.001

	// decisionFloorMultiplier is a lower safety bound on the decision:
	// speech always requires energy above 3× the noise floor, even if the
	// adaptive threshold has been reseeded very low.
	decisionFloorMultiplier = 3.0
)

// ThresholdEstimator maintains a slowly-adapting ambient noise-floor
// estimate and derives the active speech decision threshold from it.
//
// The floor moves only on frames classified as non-speech, via an
// exponential moving average; speech frames never raise it, so the detector
// does not desensitize itself during long utterances.
//
// Single-owner, not safe for concurrent use.
type ThresholdEstimator struct {
	noiseFloor float64
	threshold  float64
	alpha      float64
	multiplier float64
}

// NewThresholdEstimator creates an estimator seeded with the given adaptive
// threshold. alpha is the EMA decay rate and multiplier scales the noise
// floor into the threshold; pass [DefaultEMAAlpha] and
// [DefaultNoiseFloorMultiplier] unless tuning.
func NewThresholdEstimator(seed, alpha, multiplier float64) (*ThresholdEstimator, error) {
	if seed <= 0 {
		return nil, fmt.Errorf("vad: threshold seed must be positive, got %g", seed)
	}
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("vad: EMA alpha must be in (0, 1], got %g", alpha)
	}
	if multiplier <= 0 {
		return nil, fmt.Errorf("vad: noise-floor multiplier must be positive, got %g", multiplier)
	}
	return &ThresholdEstimator{
		noiseFloor: noiseFloorSeed,
		threshold:  seed,
		alpha:      alpha,
		multiplier: multiplier,
	}, nil
}

// Update folds one frame's energy into the estimator. Non-speech frames
// move the noise floor by the EMA rule and recompute the adaptive threshold;
// speech frames mutate nothing.
func (t *ThresholdEstimator) Update(energy float64, isSpeech bool) {
	if isSpeech {
		return
	}
	t.noiseFloor = t.alpha*energy + (1-t.alpha)*t.noiseFloor
	t.threshold = t.multiplier * t.noiseFloor
}

// Decide reports whether a frame with the given energy is speech. Speech is
// declared when the energy exceeds both the adaptive threshold and the 3×
// noise-floor safety bound.
func (t *ThresholdEstimator) Decide(energy float64) bool {
	return energy > max(t.threshold, decisionFloorMultiplier*t.noiseFloor)
}

// Reseed overwrites the adaptive threshold immediately, leaving the noise
// floor untouched. Used for runtime reconfiguration; the next non-speech
// frame resumes adaptation from the current floor.
func (t *ThresholdEstimator) Reseed(threshold float64) {
	t.threshold = threshold
}

// NoiseFloor returns the current ambient noise-floor estimate.
func (t *ThresholdEstimator) NoiseFloor() float64 {
	return t.noiseFloor
}

// Threshold returns the current adaptive decision threshold.
func (t *ThresholdEstimator) Threshold() float64 {
	return t.threshold
}
