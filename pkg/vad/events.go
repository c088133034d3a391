package vad

import "time"

// SegmentReason explains why a segment was finalized.
type SegmentReason int

const (
	// ReasonSilence means the offset-confirmation delay elapsed without
	// further speech.
	ReasonSilence SegmentReason = iota

	// ReasonMaxDuration means the segment hit the maximum-duration cap and
	// was force-cut; a new segment was opened immediately after it.
	ReasonMaxDuration
)

// String returns the wire name of the reason.
func (r SegmentReason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonMaxDuration:
		return "max_duration"
	}
	return "unknown"
}

// Event is the sum type of detector notifications. The concrete types are
// [SpeechStarted], [SegmentProduced], and [ProlongedSilence]; no other
// implementations exist.
type Event interface {
	event()
}

// SpeechStarted is emitted once per confirmed speech onset, including the
// re-opened continuation segment after a forced maximum-duration cut.
type SpeechStarted struct {
	// Timestamp is the stream position at which the onset was confirmed.
	Timestamp time.Duration
}

// SegmentProduced is emitted once per finalized utterance that met the
// minimum-duration rule (always, for a ReasonMaxDuration cut).
type SegmentProduced struct {
	// Samples is the buffered utterance audio, including the pre-roll window
	// captured before the confirmed onset. The slice is owned by the
	// receiver; the detector never touches it again.
	Samples []float64

	// Duration is the accumulated speech duration measured from the
	// confirmed onset, excluding the trailing offset-confirmation silence.
	// It is the value the minimum-duration rule was evaluated against.
	Duration time.Duration

	// Start is the stream position at which the onset was confirmed.
	Start time.Duration

	// Reason records whether the segment closed on confirmed silence or on
	// the maximum-duration cap.
	Reason SegmentReason
}

// ProlongedSilence is emitted at most once per silence episode, when the
// time since the last speech frame exceeds the configured silence timeout.
// The alarm re-arms on the next speech frame.
type ProlongedSilence struct {
	// LastSpeech is the stream position of the most recent speech frame.
	LastSpeech time.Duration
}

func (SpeechStarted) event()    {}
func (SegmentProduced) event()  {}
func (ProlongedSilence) event() {}
