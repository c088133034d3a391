// Package config provides the configuration schema, loader, and file watcher
// for the Voxgate speech segmentation service.
package config

import (
	"time"

	"github.com/voxgate/voxgate/pkg/vad"
)

// LogLevel controls log verbosity for the Voxgate server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxgate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// ServerConfig holds network and logging settings for the Voxgate server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// DetectorConfig holds the per-stream detector parameters. Zero-valued
// fields fall back to the pkg/vad defaults; only the energy threshold and
// the silence timeout are applied to already-running streams on reload.
type DetectorConfig struct {
	// SampleRate is the detector-native sample rate in Hz. Incoming streams
	// in other formats are converted on ingest.
	SampleRate int `yaml:"sample_rate"`

	// EnergyThreshold seeds the adaptive speech decision threshold.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// SilenceTimeoutMs is how long after the last detected speech the
	// prolonged-silence notification fires, in milliseconds.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// FrameMs is the classification frame duration in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// StartDelayMs is the speech-onset confirmation delay.
	StartDelayMs int `yaml:"start_delay_ms"`

	// EndDelayMs is the speech-offset confirmation delay.
	EndDelayMs int `yaml:"end_delay_ms"`

	// MaxSegmentMs force-cuts utterances longer than this.
	MaxSegmentMs int `yaml:"max_segment_ms"`

	// MinSegmentMs discards confirmed utterances shorter than this.
	MinSegmentMs int `yaml:"min_segment_ms"`

	// PreRollMs is how much audio before a confirmed onset is kept.
	PreRollMs int `yaml:"pre_roll_ms"`

	// EMAAlpha is the noise-floor adaptation rate.
	EMAAlpha float64 `yaml:"ema_alpha"`

	// NoiseFloorMultiplier scales the noise floor into the decision threshold.
	NoiseFloorMultiplier float64 `yaml:"noise_floor_multiplier"`
}

// IngestConfig bounds what stream clients may negotiate.
type IngestConfig struct {
	// MaxStreams caps concurrently open detector streams. Zero means no cap.
	MaxStreams int `yaml:"max_streams"`

	// ReadLimitBytes caps the size of a single incoming WebSocket message.
	// Zero selects the server default.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`
}

// VADConfig converts the YAML detector section into a [vad.Config].
// Zero-valued fields stay zero so pkg/vad applies its own defaults.
func (d DetectorConfig) VADConfig() vad.Config {
	return vad.Config{
		SampleRate:           d.SampleRate,
		EnergyThreshold:      d.EnergyThreshold,
		SilenceTimeout:       time.Duration(d.SilenceTimeoutMs) * time.Millisecond,
		FrameMs:              d.FrameMs,
		StartDelay:           time.Duration(d.StartDelayMs) * time.Millisecond,
		EndDelay:             time.Duration(d.EndDelayMs) * time.Millisecond,
		MaxSegment:           time.Duration(d.MaxSegmentMs) * time.Millisecond,
		MinSegment:           time.Duration(d.MinSegmentMs) * time.Millisecond,
		PreRoll:              time.Duration(d.PreRollMs) * time.Millisecond,
		EMAAlpha:             d.EMAAlpha,
		NoiseFloorMultiplier: d.NoiseFloorMultiplier,
	}
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Detector: DetectorConfig{
			SampleRate: 16000,
		},
	}
}
