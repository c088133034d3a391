package vad_test

import (
	"errors"
	"math"
	"testing"

	"github.com/voxgate/voxgate/pkg/vad"
)

func TestFramerLossless(t *testing.T) {
	const frameLen = 480

	// Input longer than several frames, fed in awkward chunk sizes.
	input := make([]float64, 4321)
	for i := range input {
		input[i] = float64(i%97) / 100
	}

	f, err := vad.NewFramer(frameLen)
	if err != nil {
		t.Fatalf("NewFramer: %v", err)
	}

	// Feed in uneven chunks covering the whole input.
	var rebuilt []float64
	chunks := []int{7, 13, 480, 1000, 1, 2600, 220}
	pos := 0
	for _, n := range chunks {
		if pos+n > len(input) {
			n = len(input) - pos
		}
		frames, err := f.Feed(input[pos : pos+n])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		for _, frame := range frames {
			if len(frame) != frameLen {
				t.Fatalf("frame length = %d, want %d", len(frame), frameLen)
			}
			rebuilt = append(rebuilt, frame...)
		}
		pos += n
	}
	rebuilt = append(rebuilt, f.Remainder()...)

	if len(rebuilt) != len(input) {
		t.Fatalf("rebuilt length = %d, want %d", len(rebuilt), len(input))
	}
	for i := range input {
		if rebuilt[i] != input[i] {
			t.Fatalf("sample %d: got %v, want %v", i, rebuilt[i], input[i])
		}
	}
}

func TestFramerEmptyFeed(t *testing.T) {
	f, err := vad.NewFramer(480)
	if err != nil {
		t.Fatalf("NewFramer: %v", err)
	}
	frames, err := f.Feed(nil)
	if err != nil {
		t.Fatalf("Feed(nil): %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("Feed(nil) yielded %d frames, want 0", len(frames))
	}
}

func TestFramerRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"nan", math.NaN()},
		{"pos_inf", math.Inf(1)},
		{"neg_inf", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := vad.NewFramer(4)
			if err != nil {
				t.Fatalf("NewFramer: %v", err)
			}
			if _, err := f.Feed([]float64{0.1, 0.2}); err != nil {
				t.Fatalf("valid Feed: %v", err)
			}

			_, err = f.Feed([]float64{0.3, tt.value, 0.5})
			var invalid *vad.InvalidSampleError
			if !errors.As(err, &invalid) {
				t.Fatalf("Feed with %s: got err %v, want InvalidSampleError", tt.name, err)
			}
			if invalid.Index != 1 {
				t.Errorf("Index = %d, want 1", invalid.Index)
			}

			// The rejected block must not have been buffered.
			if got := len(f.Remainder()); got != 2 {
				t.Errorf("remainder after rejection = %d samples, want 2", got)
			}
		})
	}
}

func TestFramerReset(t *testing.T) {
	f, err := vad.NewFramer(480)
	if err != nil {
		t.Fatalf("NewFramer: %v", err)
	}
	if _, err := f.Feed(make([]float64, 100)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	f.Reset()
	if got := len(f.Remainder()); got != 0 {
		t.Fatalf("remainder after Reset = %d samples, want 0", got)
	}
}

func TestNewFramerInvalidLength(t *testing.T) {
	if _, err := vad.NewFramer(0); err == nil {
		t.Fatal("NewFramer(0): expected error")
	}
	if _, err := vad.NewFramer(-1); err == nil {
		t.Fatal("NewFramer(-1): expected error")
	}
}
