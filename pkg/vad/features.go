package vad

import "math"

// ClassLabel is the coarse per-frame classification. It is diagnostic only:
// the speech/non-speech gating decision used by the [Detector] comes from
// the adaptive energy threshold, never from this label.
type ClassLabel int

const (
	// ClassSilence marks a frame whose energy is below the absolute floor.
	ClassSilence ClassLabel = iota

	// ClassVoiced marks a low zero-crossing-rate frame (vowel-like).
	ClassVoiced

	// ClassUnvoiced marks a high zero-crossing-rate frame (fricative-like).
	ClassUnvoiced
)

// String returns the label name.
func (c ClassLabel) String() string {
	switch c {
	case ClassSilence:
		return "silence"
	case ClassVoiced:
		return "voiced"
	case ClassUnvoiced:
		return "unvoiced"
	}
	return "unknown"
}

const (
	// silenceEnergyFloor is the absolute RMS energy below which a frame is
	// classified as silence, independent of the adaptive threshold.
	silenceEnergyFloor = 0.01

	// unvoicedZCRThreshold separates voiced from unvoiced frames.
	unvoicedZCRThreshold = 0.1

	// periodicityMinLag skips the first autocorrelation lags so the
	// zero-lag peak does not dominate the estimate.
	periodicityMinLag = 20
)

// Features is the immutable per-frame descriptor record. Each field is
// computed independently from a single frame with no cross-frame state.
type Features struct {
	// Energy is the root-mean-square amplitude of the frame.
	Energy float64

	// ZeroCrossingRate is the fraction of adjacent sample pairs with
	// differing signs, in [0, 1].
	ZeroCrossingRate float64

	// SpectralCentroidHz is a coarse amplitude-weighted centroid estimate
	// scaled to Hz. See [SpectralCentroid] for its limitations.
	SpectralCentroidHz float64

	// Periodicity is the maximum normalized lag-autocorrelation value.
	Periodicity float64

	// Class is the coarse silence/voiced/unvoiced label.
	Class ClassLabel

	// LikelySpeech is a convenience heuristic: the frame has above-floor
	// energy and a non-silence class label. Diagnostic only.
	LikelySpeech bool
}

// Energy returns the root-mean-square amplitude of the frame. An empty
// frame has zero energy.
func Energy(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs
// differ, relative to the frame length. A perfectly alternating ±A signal of
// n samples yields (n−1)/n.
func ZeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i] >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame))
}

// SpectralCentroid returns an amplitude-weighted sample-index centroid
// scaled into an approximate frequency in Hz.
//
// This is a coarse time-domain heuristic, not a Fourier-domain spectral
// centroid: it weights sample positions by absolute amplitude and maps the
// normalized centroid index onto [0, sampleRate/2]. It is useful only as a
// relative brightness indicator and is not a substitute for real spectral
// analysis.
func SpectralCentroid(frame []float64, sampleRate int) float64 {
	var weighted, magnitude float64
	for i, s := range frame {
		a := math.Abs(s)
		weighted += a * float64(i)
		magnitude += a
	}
	if magnitude == 0 {
		return 0
	}
	centroid := weighted / magnitude / float64(len(frame))
	return centroid * float64(sampleRate) / 2
}

// Periodicity returns the maximum lag-autocorrelation of the frame,
// normalized by the zero-lag energy, over lags from a small skip through
// half the frame length. Strongly periodic frames (voiced speech, tones)
// score near 1; noise scores near 0. Frames too short to evaluate any lag
// return 0.
func Periodicity(frame []float64) float64 {
	n := len(frame)
	maxLag := n / 2
	if maxLag <= periodicityMinLag {
		return 0
	}

	var r0 float64
	for _, s := range frame {
		r0 += s * s
	}
	if r0 == 0 {
		return 0
	}

	best := math.Inf(-1)
	for lag := periodicityMinLag; lag <= maxLag; lag++ {
		var r float64
		for i := 0; i+lag < n; i++ {
			r += frame[i] * frame[i+lag]
		}
		if r > best {
			best = r
		}
	}
	return best / r0
}

// Classify returns the coarse class label for a frame given its RMS energy:
// silence below the absolute energy floor, unvoiced above the
// zero-crossing-rate threshold, voiced otherwise.
func Classify(frame []float64, energy float64) ClassLabel {
	if energy < silenceEnergyFloor {
		return ClassSilence
	}
	if ZeroCrossingRate(frame) > unvoicedZCRThreshold {
		return ClassUnvoiced
	}
	return ClassVoiced
}

// ExtractFeatures computes the full per-frame feature record.
func ExtractFeatures(frame []float64, sampleRate int) Features {
	energy := Energy(frame)
	class := Classify(frame, energy)
	return Features{
		Energy:             energy,
		ZeroCrossingRate:   ZeroCrossingRate(frame),
		SpectralCentroidHz: SpectralCentroid(frame, sampleRate),
		Periodicity:        Periodicity(frame),
		Class:              class,
		LikelySpeech:       energy > silenceEnergyFloor && class != ClassSilence,
	}
}
