// Package audio converts wire-format PCM into the normalized float64 sample
// streams consumed by the detector. It covers the mechanical boundary work:
// int16 little-endian decoding, stereo downmix, and linear resampling to the
// detector rate.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a short human-readable description, e.g. "48000Hz/2ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// DecodePCM16 converts little-endian int16 PCM bytes into normalized
// float64 samples in [-1, 1). Returns an error on an odd byte count, which
// indicates corrupt or misaligned input.
func DecodePCM16(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in int16 PCM data", len(data))
	}
	out := make([]float64, len(data)/2)
	for i := range out {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float64(s) / 32768
	}
	return out, nil
}

// EncodePCM16 converts normalized float64 samples into little-endian int16
// PCM bytes, clamping out-of-range values.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		scaled := v * 32768
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		s := int16(scaled)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Int16ToFloat64 converts int16 samples into normalized float64 samples.
func Int16ToFloat64(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768
	}
	return out
}

// StereoToMono downmixes interleaved stereo samples by averaging each L+R
// pair. An odd trailing sample is dropped.
func StereoToMono(samples []float64) []float64 {
	out := make([]float64, len(samples)/2)
	for i := range out {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// Resample converts mono samples from one sample rate to another using
// linear interpolation. It is a quality/latency trade-off suited to speech
// detection, not a band-limited resampler for playback.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	outLen := len(samples) * toRate / fromRate
	if outLen == 0 {
		return nil
	}
	out := make([]float64, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// Converter normalizes incoming sample blocks to a target mono format.
// It logs a warning on the first format mismatch only. Create one per
// stream; not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert downmixes and resamples a block from the source format to the
// target. If the source already matches, the block is returned unchanged.
func (c *Converter) Convert(samples []float64, from Format) []float64 {
	if from == c.Target {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", from.String(),
			"to", c.Target.String(),
		)
	})

	// Downmix first so resampling runs on mono data.
	if from.Channels == 2 && c.Target.Channels == 1 {
		samples = StereoToMono(samples)
	}
	if from.SampleRate != c.Target.SampleRate {
		samples = Resample(samples, from.SampleRate, c.Target.SampleRate)
	}
	return samples
}
