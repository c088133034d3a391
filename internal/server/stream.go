package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"layeh.com/gopus"

	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/vad"
)

// Codec names accepted in the ?codec= query parameter.
const (
	codecPCM16 = "pcm16"
	codecOpus  = "opus"
)

// maxOpusFrameMs is the largest frame duration an Opus packet may carry.
// The decoder output buffer is sized for it.
const maxOpusFrameMs = 120

// wireEvent is the JSON envelope for detector events sent to the client.
// Segment audio travels base64-encoded as little-endian int16 PCM at the
// detector sample rate.
type wireEvent struct {
	Type         string `json:"type"`
	TimestampMs  int64  `json:"timestamp_ms,omitempty"`
	StartMs      int64  `json:"start_ms,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	Reason       string `json:"reason,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Audio        string `json:"audio,omitempty"`
	LastSpeechMs int64  `json:"last_speech_ms,omitempty"`
	Message      string `json:"message,omitempty"`
}

// wireSnapshot is the JSON reply to a "snapshot" control command.
type wireSnapshot struct {
	Type              string  `json:"type"`
	Phase             string  `json:"phase"`
	NoiseFloor        float64 `json:"noise_floor"`
	AdaptiveThreshold float64 `json:"adaptive_threshold"`
	StreamPositionMs  int64   `json:"stream_position_ms"`
	LastSpeechMs      int64   `json:"last_speech_ms"`
	BufferedSamples   int     `json:"buffered_samples"`
	FramesProcessed   uint64  `json:"frames_processed"`
	SpeechFrames      uint64  `json:"speech_frames"`
	SegmentsProduced  uint64  `json:"segments_produced"`
}

// controlMessage is a client-to-server text message on an open stream.
type controlMessage struct {
	// Action is one of "update_config", "reset", or "snapshot".
	Action string `json:"action"`

	// EnergyThreshold and SilenceTimeoutMs apply to "update_config".
	// Absent fields are left unchanged.
	EnergyThreshold  *float64 `json:"energy_threshold,omitempty"`
	SilenceTimeoutMs *int64   `json:"silence_timeout_ms,omitempty"`
}

// stream is one WebSocket connection with its own detector. The read loop
// owns the detector; applyUpdate synchronizes through mu.
type stream struct {
	conn *websocket.Conn
	from audio.Format
	conv *audio.Converter
	dec  *gopus.Decoder

	mu  sync.Mutex
	det *vad.Detector

	// Cumulative detector counters at the previous Feed, for metric deltas.
	frames uint64
	speech uint64
}

// handleStream upgrades the request to a WebSocket and runs the stream read
// loop until the client disconnects or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	from, codec, err := parseStreamParams(r, s.cfg.Detector.SampleRate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vcfg := s.cfg.Detector.VADConfig()
	det, err := vad.New(vcfg)
	if err != nil {
		http.Error(w, "detector: "+err.Error(), http.StatusInternalServerError)
		return
	}

	st := &stream{
		from: from,
		conv: &audio.Converter{Target: audio.Format{SampleRate: vcfg.SampleRate, Channels: 1}},
		det:  det,
	}
	if codec == codecOpus {
		st.dec, err = gopus.NewDecoder(from.SampleRate, from.Channels)
		if err != nil {
			http.Error(w, "opus decoder: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := s.register(st); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.unregister(st)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "err", err)
		return
	}
	st.conn = conn
	if s.cfg.Ingest.ReadLimitBytes > 0 {
		conn.SetReadLimit(s.cfg.Ingest.ReadLimitBytes)
	}

	s.metrics.ActiveStreams.Add(r.Context(), 1)
	defer s.metrics.ActiveStreams.Add(r.Context(), -1)

	log.Info("stream opened", "codec", codec, "format", from.String())
	if err := st.run(r.Context(), s.metrics); err != nil {
		log.Warn("stream closed with error", "err", err)
		conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	log.Info("stream closed")
	conn.Close(websocket.StatusNormalClosure, "")
}

// parseStreamParams extracts codec, sample rate, and channel count from the
// request query, applying defaults and validating ranges.
func parseStreamParams(r *http.Request, defaultRate int) (audio.Format, string, error) {
	q := r.URL.Query()

	codec := q.Get("codec")
	if codec == "" {
		codec = codecPCM16
	}
	if codec != codecPCM16 && codec != codecOpus {
		return audio.Format{}, "", fmt.Errorf("unsupported codec %q", codec)
	}

	rate := defaultRate
	if v := q.Get("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return audio.Format{}, "", fmt.Errorf("invalid sample_rate %q", v)
		}
		rate = n
	}

	channels := 1
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 2 {
			return audio.Format{}, "", fmt.Errorf("invalid channels %q (must be 1 or 2)", v)
		}
		channels = n
	}

	return audio.Format{SampleRate: rate, Channels: channels}, codec, nil
}

// run is the stream read loop. Binary messages carry audio; text messages
// carry control commands. Detector events are written back as JSON text.
func (st *stream) run(ctx context.Context, m *observe.Metrics) error {
	for {
		typ, data, err := st.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			if err := st.handleAudio(ctx, m, data); err != nil {
				return err
			}
		case websocket.MessageText:
			if err := st.handleControl(ctx, data); err != nil {
				return err
			}
		}
	}
}

// handleAudio decodes one audio message, feeds it through the detector, and
// writes any resulting events back to the client.
func (st *stream) handleAudio(ctx context.Context, m *observe.Metrics, data []byte) error {
	m.IngestBytes.Add(ctx, int64(len(data)))

	var samples []float64
	if st.dec != nil {
		pcm, err := st.dec.Decode(data, st.from.SampleRate*maxOpusFrameMs/1000, false)
		if err != nil {
			return st.writeError(ctx, "opus decode: "+err.Error())
		}
		samples = audio.Int16ToFloat64(pcm)
	} else {
		var err error
		samples, err = audio.DecodePCM16(data)
		if err != nil {
			return st.writeError(ctx, err.Error())
		}
	}
	samples = st.conv.Convert(samples, st.from)

	st.mu.Lock()
	events, err := st.det.Feed(samples)
	snap := st.det.Snapshot()
	st.mu.Unlock()
	if err != nil {
		return st.writeError(ctx, err.Error())
	}

	st.recordFrames(ctx, m, snap)

	for _, ev := range events {
		recordEvent(ctx, m, ev)
		if werr := st.writeJSON(ctx, encodeEvent(ev, st.conv.Target.SampleRate)); werr != nil {
			return werr
		}
	}
	return nil
}

// recordFrames records per-frame metrics from cumulative counter deltas.
func (st *stream) recordFrames(ctx context.Context, m *observe.Metrics, snap vad.Snapshot) {
	frames := snap.FramesProcessed - st.frames
	speech := snap.SpeechFrames - st.speech
	st.frames = snap.FramesProcessed
	st.speech = snap.SpeechFrames

	if speech > 0 {
		m.FramesProcessed.Add(ctx, int64(speech),
			metric.WithAttributes(attribute.Bool("speech", true)))
	}
	if silence := frames - speech; silence > 0 {
		m.FramesProcessed.Add(ctx, int64(silence),
			metric.WithAttributes(attribute.Bool("speech", false)))
	}
}

// recordEvent records event-level metrics.
func recordEvent(ctx context.Context, m *observe.Metrics, ev vad.Event) {
	switch e := ev.(type) {
	case vad.SpeechStarted:
		m.SpeechOnsets.Add(ctx, 1)
	case vad.SegmentProduced:
		m.RecordSegment(ctx, e.Reason.String(), e.Duration.Seconds())
	case vad.ProlongedSilence:
		m.SilenceAlarms.Add(ctx, 1)
	}
}

// handleControl executes one control command and writes the reply, if any.
func (st *stream) handleControl(ctx context.Context, data []byte) error {
	var cmd controlMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		return st.writeError(ctx, "control: "+err.Error())
	}

	switch cmd.Action {
	case "update_config":
		u := vad.Update{EnergyThreshold: cmd.EnergyThreshold}
		if cmd.SilenceTimeoutMs != nil {
			d := time.Duration(*cmd.SilenceTimeoutMs) * time.Millisecond
			u.SilenceTimeout = &d
		}
		st.applyUpdate(u)
		return nil
	case "reset":
		st.mu.Lock()
		st.det.Reset()
		st.frames = 0
		st.speech = 0
		st.mu.Unlock()
		return nil
	case "snapshot":
		st.mu.Lock()
		snap := st.det.Snapshot()
		st.mu.Unlock()
		return st.writeJSON(ctx, encodeSnapshot(snap))
	default:
		return st.writeError(ctx, fmt.Sprintf("control: unknown action %q", cmd.Action))
	}
}

// applyUpdate forwards a runtime reconfiguration to the stream's detector.
func (st *stream) applyUpdate(u vad.Update) {
	st.mu.Lock()
	st.det.UpdateConfig(u)
	st.mu.Unlock()
}

// close force-closes the connection. Safe to call from other goroutines.
func (st *stream) close(reason string) {
	if st.conn != nil {
		st.conn.Close(websocket.StatusGoingAway, reason)
	}
}

func (st *stream) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.conn.Write(ctx, websocket.MessageText, data)
}

func (st *stream) writeError(ctx context.Context, msg string) error {
	return st.writeJSON(ctx, wireEvent{Type: "error", Message: msg})
}

// encodeEvent maps a detector event onto its wire envelope.
func encodeEvent(ev vad.Event, sampleRate int) wireEvent {
	switch e := ev.(type) {
	case vad.SpeechStarted:
		return wireEvent{
			Type:        "speech_started",
			TimestampMs: e.Timestamp.Milliseconds(),
		}
	case vad.SegmentProduced:
		return wireEvent{
			Type:       "segment_produced",
			StartMs:    e.Start.Milliseconds(),
			DurationMs: e.Duration.Milliseconds(),
			Reason:     e.Reason.String(),
			SampleRate: sampleRate,
			Audio:      base64.StdEncoding.EncodeToString(audio.EncodePCM16(e.Samples)),
		}
	case vad.ProlongedSilence:
		return wireEvent{
			Type:         "prolonged_silence",
			LastSpeechMs: e.LastSpeech.Milliseconds(),
		}
	default:
		return wireEvent{Type: "error", Message: "unknown event"}
	}
}

// encodeSnapshot maps a detector snapshot onto its wire form.
func encodeSnapshot(snap vad.Snapshot) wireSnapshot {
	return wireSnapshot{
		Type:              "snapshot",
		Phase:             snap.Phase.String(),
		NoiseFloor:        snap.NoiseFloor,
		AdaptiveThreshold: snap.AdaptiveThreshold,
		StreamPositionMs:  snap.StreamPosition.Milliseconds(),
		LastSpeechMs:      snap.LastSpeech.Milliseconds(),
		BufferedSamples:   snap.BufferedSamples,
		FramesProcessed:   snap.FramesProcessed,
		SpeechFrames:      snap.SpeechFrames,
		SegmentsProduced:  snap.SegmentsProduced,
	}
}
