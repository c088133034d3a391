package vad

import (
	"fmt"
	"math"
)

// InvalidSampleError reports a non-finite sample (NaN or ±Inf) at the ingest
// boundary. The offending input is rejected as a whole and nothing from the
// call is buffered, so a NaN can never propagate into energy computations.
type InvalidSampleError struct {
	// Index is the offset of the first invalid sample within the rejected
	// input slice.
	Index int

	// Value is the invalid sample value.
	Value float64
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("vad: invalid sample at index %d: %v", e.Index, e.Value)
}

// Framer slices an unbounded sample stream into fixed-length frames. Samples
// that do not yet fill a complete frame are retained as a remainder for the
// next call; no samples are ever dropped or reordered. Concatenating every
// yielded frame plus the final remainder reproduces the input exactly.
//
// A Framer is single-owner and not safe for concurrent use.
type Framer struct {
	frameLen  int
	remainder []float64
}

// NewFramer creates a Framer producing frames of frameLen samples.
// frameLen must be positive.
func NewFramer(frameLen int) (*Framer, error) {
	if frameLen <= 0 {
		return nil, fmt.Errorf("vad: frame length must be positive, got %d", frameLen)
	}
	return &Framer{frameLen: frameLen}, nil
}

// Feed appends samples to the carry-over remainder and returns every
// complete frame now available, in arrival order. Each returned frame is an
// independent copy; callers may retain frames without aliasing concerns.
//
// If any sample is non-finite, Feed returns an [InvalidSampleError] and
// buffers nothing from this call.
func (f *Framer) Feed(samples []float64) ([][]float64, error) {
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, &InvalidSampleError{Index: i, Value: s}
		}
	}

	f.remainder = append(f.remainder, samples...)

	n := len(f.remainder) / f.frameLen
	if n == 0 {
		return nil, nil
	}

	frames := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		frame := make([]float64, f.frameLen)
		copy(frame, f.remainder[i*f.frameLen:(i+1)*f.frameLen])
		frames = append(frames, frame)
	}

	// Move the tail to a fresh slice so consumed frames do not pin the old
	// backing array.
	tail := f.remainder[n*f.frameLen:]
	f.remainder = append(make([]float64, 0, f.frameLen), tail...)

	return frames, nil
}

// Remainder returns a copy of the buffered partial frame.
func (f *Framer) Remainder() []float64 {
	out := make([]float64, len(f.remainder))
	copy(out, f.remainder)
	return out
}

// Reset discards any buffered partial frame.
func (f *Framer) Reset() {
	f.remainder = f.remainder[:0]
}

// FrameLen returns the configured frame length in samples.
func (f *Framer) FrameLen() int {
	return f.frameLen
}
