package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/vad"
)

// analyzeChunk is how many samples are fed per detector call, roughly
// simulating streaming ingest.
const analyzeChunk = 4096

// segmentBitDepth is the bit depth of written segment WAV files.
const segmentBitDepth = 16

// analyzeEvent is one JSON line of analyzer output.
type analyzeEvent struct {
	Type         string `json:"type"`
	TimestampMs  int64  `json:"timestamp_ms,omitempty"`
	StartMs      int64  `json:"start_ms,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Samples      int    `json:"samples,omitempty"`
	File         string `json:"file,omitempty"`
	LastSpeechMs int64  `json:"last_speech_ms,omitempty"`
}

// analyzeSummary is the trailing JSON line after the whole file is fed.
type analyzeSummary struct {
	Type             string  `json:"type"`
	DurationMs       int64   `json:"duration_ms"`
	FramesProcessed  uint64  `json:"frames_processed"`
	SpeechFrames     uint64  `json:"speech_frames"`
	SegmentsProduced uint64  `json:"segments_produced"`
	NoiseFloor       float64 `json:"noise_floor"`
}

// analyzeFile runs a WAV file through a detector and writes one JSON line
// per event to w. When segmentsDir is non-empty, each finalized segment is
// additionally written there as a 16-bit mono WAV file.
func analyzeFile(w io.Writer, path, segmentsDir string, dcfg config.DetectorConfig) error {
	samples, from, err := readWAV(path)
	if err != nil {
		return err
	}

	vcfg := dcfg.VADConfig()
	det, err := vad.New(vcfg)
	if err != nil {
		return err
	}
	conv := &audio.Converter{Target: audio.Format{SampleRate: vcfg.SampleRate, Channels: 1}}
	samples = conv.Convert(samples, from)

	out := json.NewEncoder(w)
	segIdx := 0

	for off := 0; off < len(samples); off += analyzeChunk {
		end := min(off+analyzeChunk, len(samples))
		events, err := det.Feed(samples[off:end])
		if err != nil {
			return err
		}
		for _, ev := range events {
			line, seg, isSeg := encodeAnalyzeEvent(ev)
			if isSeg && segmentsDir != "" {
				segIdx++
				file := filepath.Join(segmentsDir, fmt.Sprintf("segment_%04d.wav", segIdx))
				if err := writeSegmentWAV(file, seg.Samples, conv.Target.SampleRate); err != nil {
					return err
				}
				line.File = file
			}
			if err := out.Encode(line); err != nil {
				return err
			}
		}
	}

	snap := det.Snapshot()
	return out.Encode(analyzeSummary{
		Type:             "summary",
		DurationMs:       snap.StreamPosition.Milliseconds(),
		FramesProcessed:  snap.FramesProcessed,
		SpeechFrames:     snap.SpeechFrames,
		SegmentsProduced: snap.SegmentsProduced,
		NoiseFloor:       snap.NoiseFloor,
	})
}

// encodeAnalyzeEvent maps a detector event to its output line. For segments
// it also returns the typed event so the caller can save the audio.
func encodeAnalyzeEvent(ev vad.Event) (analyzeEvent, vad.SegmentProduced, bool) {
	switch e := ev.(type) {
	case vad.SpeechStarted:
		return analyzeEvent{
			Type:        "speech_started",
			TimestampMs: e.Timestamp.Milliseconds(),
		}, vad.SegmentProduced{}, false
	case vad.SegmentProduced:
		return analyzeEvent{
			Type:       "segment_produced",
			StartMs:    e.Start.Milliseconds(),
			DurationMs: e.Duration.Milliseconds(),
			Reason:     e.Reason.String(),
			Samples:    len(e.Samples),
		}, e, true
	case vad.ProlongedSilence:
		return analyzeEvent{
			Type:         "prolonged_silence",
			LastSpeechMs: e.LastSpeech.Milliseconds(),
		}, vad.SegmentProduced{}, false
	default:
		return analyzeEvent{Type: "unknown"}, vad.SegmentProduced{}, false
	}
}

// readWAV decodes a whole WAV file into normalized float64 samples.
func readWAV(path string) ([]float64, audio.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, audio.Format{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, audio.Format{}, fmt.Errorf("%s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("read %s: %w", path, err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	scale := float64(int(1) << (bitDepth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}

	from := audio.Format{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}
	return samples, from, nil
}

// writeSegmentWAV saves samples as a 16-bit mono WAV file.
func writeSegmentWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, segmentBitDepth, 1, 1)
	data := make([]int, len(samples))
	for i, v := range samples {
		scaled := v * 32768
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		data[i] = int(scaled)
	}
	if err := enc.Write(&goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: segmentBitDepth,
	}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return enc.Close()
}
