package vad

import (
	"fmt"
	"time"
)

// Default values for the detector's timing knobs. All of them are exposed on
// [Config] so deployments can tune the hysteresis behaviour.
const (
	DefaultFrameMs        = 30
	DefaultStartDelay     = 300 * time.Millisecond
	DefaultEndDelay       = 1000 * time.Millisecond
	DefaultMaxSegment     = 3000 * time.Millisecond
	DefaultMinSegment     = 1000 * time.Millisecond
	DefaultPreRoll        = 300 * time.Millisecond
	DefaultSilenceTimeout = 30 * time.Second
)

// Phase is the segmentation state machine phase.
type Phase int

const (
	// PhaseIdle means no speech is suspected; only the rolling pre-roll
	// window is retained.
	PhaseIdle Phase = iota

	// PhaseConfirmingStart means speech was detected and the onset
	// confirmation delay is running.
	PhaseConfirmingStart

	// PhaseActive means a confirmed utterance is in progress.
	PhaseActive

	// PhaseConfirmingEnd means silence was detected during an utterance and
	// the offset confirmation delay is running; speech is still logically
	// active and the segment buffer keeps growing.
	PhaseConfirmingEnd
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConfirmingStart:
		return "confirming_start"
	case PhaseActive:
		return "active"
	case PhaseConfirmingEnd:
		return "confirming_end"
	}
	return "unknown"
}

// Config holds the parameters for one [Detector] instance.
//
// Zero values for the optional fields select the package defaults;
// SampleRate is required.
type Config struct {
	// SampleRate is the input sample rate in Hz. Required.
	SampleRate int

	// EnergyThreshold seeds the adaptive decision threshold. The threshold
	// re-derives itself from the ambient noise floor as non-speech frames
	// arrive. Default: [DefaultEnergyThreshold].
	EnergyThreshold float64

	// SilenceTimeout is how long after the last speech frame the
	// prolonged-silence alarm fires. Zero selects [DefaultSilenceTimeout];
	// a negative value disables the alarm.
	SilenceTimeout time.Duration

	// FrameMs is the classification frame duration in milliseconds.
	// Default: [DefaultFrameMs].
	FrameMs int

	// StartDelay is the onset confirmation delay: speech must persist this
	// long before an utterance is confirmed. Default: [DefaultStartDelay].
	StartDelay time.Duration

	// EndDelay is the offset confirmation delay: silence must persist this
	// long before an utterance is closed. Default: [DefaultEndDelay].
	EndDelay time.Duration

	// MaxSegment force-cuts utterances that exceed this duration, opening a
	// continuation segment immediately. Default: [DefaultMaxSegment].
	MaxSegment time.Duration

	// MinSegment discards confirmed utterances whose accumulated speech
	// duration never reached this value. Default: [DefaultMinSegment].
	MinSegment time.Duration

	// PreRoll is how much audio preceding a confirmed onset is retained at
	// the head of the segment. Default: [DefaultPreRoll].
	PreRoll time.Duration

	// EMAAlpha is the noise-floor EMA decay rate. Default: [DefaultEMAAlpha].
	EMAAlpha float64

	// NoiseFloorMultiplier scales the noise floor into the adaptive
	// threshold. Default: [DefaultNoiseFloorMultiplier].
	NoiseFloorMultiplier float64
}

// withDefaults returns a copy of c with zero-valued optional fields replaced
// by the package defaults.
func (c Config) withDefaults() Config {
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = DefaultEnergyThreshold
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.FrameMs == 0 {
		c.FrameMs = DefaultFrameMs
	}
	if c.StartDelay == 0 {
		c.StartDelay = DefaultStartDelay
	}
	if c.EndDelay == 0 {
		c.EndDelay = DefaultEndDelay
	}
	if c.MaxSegment == 0 {
		c.MaxSegment = DefaultMaxSegment
	}
	if c.MinSegment == 0 {
		c.MinSegment = DefaultMinSegment
	}
	if c.PreRoll == 0 {
		c.PreRoll = DefaultPreRoll
	}
	if c.EMAAlpha == 0 {
		c.EMAAlpha = DefaultEMAAlpha
	}
	if c.NoiseFloorMultiplier == 0 {
		c.NoiseFloorMultiplier = DefaultNoiseFloorMultiplier
	}
	return c
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameMs <= 0 {
		return fmt.Errorf("vad: frame duration must be positive, got %d ms", c.FrameMs)
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"start delay", c.StartDelay},
		{"end delay", c.EndDelay},
		{"max segment", c.MaxSegment},
		{"min segment", c.MinSegment},
		{"pre-roll", c.PreRoll},
	} {
		if d.val < 0 {
			return fmt.Errorf("vad: %s must not be negative, got %v", d.name, d.val)
		}
	}
	return nil
}

// Update carries a runtime reconfiguration for [Detector.UpdateConfig].
// Nil fields are left unchanged.
type Update struct {
	// EnergyThreshold overwrites the adaptive decision threshold
	// immediately; adaptation resumes from the current noise floor.
	EnergyThreshold *float64

	// SilenceTimeout replaces the prolonged-silence alarm timeout. The new
	// timeout is evaluated against the existing last-speech baseline on the
	// next frame.
	SilenceTimeout *time.Duration
}

// deadline is an absolute stream-time deadline guarded by a generation
// counter. Arming or cancelling bumps the generation, so a check captured
// against an older generation can never act, regardless of the scheduling
// model.
type deadline struct {
	at    time.Duration
	gen   uint64
	armed bool
}

// arm schedules the deadline if it is not already pending. Arming while
// pending is a no-op, preserving the original anchor.
func (d *deadline) arm(at time.Duration) {
	if d.armed {
		return
	}
	d.gen++
	d.at = at
	d.armed = true
}

// cancel disarms the deadline and invalidates any captured generation.
func (d *deadline) cancel() {
	d.gen++
	d.armed = false
}

// due reports whether the deadline is pending and has elapsed at now.
func (d *deadline) due(now time.Duration) bool {
	return d.armed && now >= d.at
}

// Detector is the segmentation state machine. It consumes a sample stream
// via [Detector.Feed] and emits [Event] values for confirmed speech onsets,
// finalized segments, and prolonged silence.
//
// A Detector owns its state exclusively and is not safe for concurrent use;
// create one per audio source and serialize access externally if needed.
type Detector struct {
	cfg       Config
	framer    *Framer
	estimator *ThresholdEstimator

	frameDur   time.Duration
	preRollLen int

	now   time.Duration // stream clock, advanced one frame per tick
	phase Phase

	buf      []float64
	segStart time.Duration

	onset  deadline
	offset deadline

	everSpeech bool
	lastSpeech time.Duration
	alarmFired bool

	framesTotal  uint64
	speechFrames uint64
	segments     uint64
}

// Snapshot is a point-in-time view of detector state for diagnostics and
// metrics export.
type Snapshot struct {
	Phase             Phase
	NoiseFloor        float64
	AdaptiveThreshold float64
	StreamPosition    time.Duration
	LastSpeech        time.Duration
	BufferedSamples   int
	FramesProcessed   uint64
	SpeechFrames      uint64
	SegmentsProduced  uint64
}

// New creates a Detector for one audio source. Optional Config fields at
// their zero value select the package defaults.
func New(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	frameLen := cfg.SampleRate * cfg.FrameMs / 1000
	framer, err := NewFramer(frameLen)
	if err != nil {
		return nil, err
	}
	estimator, err := NewThresholdEstimator(cfg.EnergyThreshold, cfg.EMAAlpha, cfg.NoiseFloorMultiplier)
	if err != nil {
		return nil, err
	}

	return &Detector{
		cfg:        cfg,
		framer:     framer,
		estimator:  estimator,
		frameDur:   time.Duration(cfg.FrameMs) * time.Millisecond,
		preRollLen: int(cfg.PreRoll.Seconds() * float64(cfg.SampleRate)),
		phase:      PhaseIdle,
	}, nil
}

// Feed processes a block of normalized samples and returns the events they
// triggered, in causal order. Blocks may be any length; partial frames are
// carried over. Deadlines that elapse mid-block are handled on the frame
// tick at which they become due, before any later frame is classified.
//
// Non-finite samples are rejected with an [InvalidSampleError] before any
// state changes.
func (d *Detector) Feed(samples []float64) ([]Event, error) {
	frames, err := d.framer.Feed(samples)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, frame := range frames {
		events = d.processFrame(frame, events)
	}
	return events, nil
}

// processFrame runs one tick: classify, buffer, transition, then check
// deadlines in priority order.
func (d *Detector) processFrame(frame []float64, events []Event) []Event {
	frameStart := d.now
	d.now += d.frameDur
	d.framesTotal++

	energy := Energy(frame)
	speech := d.estimator.Decide(energy)
	d.estimator.Update(energy, speech)

	if speech {
		d.speechFrames++
		d.everSpeech = true
		d.lastSpeech = d.now
		d.alarmFired = false
	}

	d.buf = append(d.buf, frame...)
	if d.phase == PhaseIdle {
		// Only the rolling pre-roll window is retained while idle, keeping
		// memory bounded through arbitrarily long silence.
		d.trimToPreRoll()
	}

	switch d.phase {
	case PhaseIdle:
		if speech {
			d.onset.arm(frameStart + d.cfg.StartDelay)
			d.phase = PhaseConfirmingStart
		}
	case PhaseConfirmingStart:
		if !speech {
			d.onset.cancel()
			d.phase = PhaseIdle
			d.trimToPreRoll()
		}
	case PhaseActive:
		if !speech {
			d.offset.arm(frameStart + d.cfg.EndDelay)
			d.phase = PhaseConfirmingEnd
		}
	case PhaseConfirmingEnd:
		if speech {
			d.offset.cancel()
			d.phase = PhaseActive
		}
	}

	// Onset confirmation.
	if d.phase == PhaseConfirmingStart && d.onset.due(d.now) {
		d.onset.cancel()
		d.phase = PhaseActive
		d.trimToPreRoll()
		d.segStart = d.now
		events = append(events, SpeechStarted{Timestamp: d.now})
	}

	// Maximum-duration force cut. Takes priority over the offset path on
	// the same tick: continuous speech longer than the cap is split into
	// consecutive segments with no gap in coverage.
	if (d.phase == PhaseActive || d.phase == PhaseConfirmingEnd) &&
		d.now-d.segStart >= d.cfg.MaxSegment {
		events = append(events, d.finalize(ReasonMaxDuration))
		d.offset.cancel()
		d.phase = PhaseActive
		d.segStart = d.now
		events = append(events, SpeechStarted{Timestamp: d.now})
	}

	// Offset confirmation.
	if d.phase == PhaseConfirmingEnd && d.offset.due(d.now) {
		d.offset.cancel()
		if d.lastSpeech-d.segStart >= d.cfg.MinSegment {
			events = append(events, d.finalize(ReasonSilence))
		} else {
			// Too short to keep; drop the buffer silently.
			d.buf = d.buf[:0]
		}
		d.phase = PhaseIdle
	}

	// Prolonged-silence alarm, independent of the segmentation phases.
	// Fires at most once per silence episode; any speech frame re-arms it.
	if d.everSpeech && !d.alarmFired && d.cfg.SilenceTimeout > 0 &&
		d.now-d.lastSpeech >= d.cfg.SilenceTimeout {
		d.alarmFired = true
		events = append(events, ProlongedSilence{LastSpeech: d.lastSpeech})
	}

	return events
}

// finalize emits the in-flight segment and hands buffer ownership to the
// event. For ReasonSilence the duration is the accumulated speech time
// (trailing confirmation silence excluded); for ReasonMaxDuration it is the
// full elapsed time since the segment opened.
func (d *Detector) finalize(reason SegmentReason) SegmentProduced {
	duration := d.now - d.segStart
	if reason == ReasonSilence {
		duration = d.lastSpeech - d.segStart
	}

	samples := d.buf
	d.buf = nil
	d.segments++

	return SegmentProduced{
		Samples:  samples,
		Duration: duration,
		Start:    d.segStart,
		Reason:   reason,
	}
}

// trimToPreRoll drops all but the trailing pre-roll window from the buffer.
func (d *Detector) trimToPreRoll() {
	if len(d.buf) > d.preRollLen {
		d.buf = append(d.buf[:0], d.buf[len(d.buf)-d.preRollLen:]...)
	}
}

// Reset cancels every pending deadline and clears all buffers, timestamps,
// and adaptation state unconditionally. Subsequent input behaves exactly as
// on a freshly constructed instance; no stale deadline can fire afterwards.
func (d *Detector) Reset() {
	d.framer.Reset()
	d.estimator, _ = NewThresholdEstimator(d.cfg.EnergyThreshold, d.cfg.EMAAlpha, d.cfg.NoiseFloorMultiplier)
	d.onset.cancel()
	d.offset.cancel()
	d.buf = nil
	d.now = 0
	d.phase = PhaseIdle
	d.segStart = 0
	d.everSpeech = false
	d.lastSpeech = 0
	d.alarmFired = false
	d.framesTotal = 0
	d.speechFrames = 0
	d.segments = 0
}

// UpdateConfig applies a runtime reconfiguration without destroying
// accumulated state. A new energy threshold overwrites the adaptive
// threshold immediately.
func (d *Detector) UpdateConfig(u Update) {
	if u.EnergyThreshold != nil {
		d.cfg.EnergyThreshold = *u.EnergyThreshold
		d.estimator.Reseed(*u.EnergyThreshold)
	}
	if u.SilenceTimeout != nil {
		d.cfg.SilenceTimeout = *u.SilenceTimeout
	}
}

// Config returns the detector's effective configuration (defaults applied).
func (d *Detector) Config() Config {
	return d.cfg
}

// Snapshot returns a point-in-time view of the detector state.
func (d *Detector) Snapshot() Snapshot {
	return Snapshot{
		Phase:             d.phase,
		NoiseFloor:        d.estimator.NoiseFloor(),
		AdaptiveThreshold: d.estimator.Threshold(),
		StreamPosition:    d.now,
		LastSpeech:        d.lastSpeech,
		BufferedSamples:   len(d.buf),
		FramesProcessed:   d.framesTotal,
		SpeechFrames:      d.speechFrames,
		SegmentsProduced:  d.segments,
	}
}
