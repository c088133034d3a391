package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// Missing sections fall back to [Default] values.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	d := cfg.Detector
	if d.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("detector.sample_rate must be positive, got %d", d.SampleRate))
	}
	if d.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("detector.energy_threshold must not be negative, got %g", d.EnergyThreshold))
	}
	for _, field := range []struct {
		name string
		val  int
	}{
		{"detector.frame_ms", d.FrameMs},
		{"detector.start_delay_ms", d.StartDelayMs},
		{"detector.end_delay_ms", d.EndDelayMs},
		{"detector.max_segment_ms", d.MaxSegmentMs},
		{"detector.min_segment_ms", d.MinSegmentMs},
		{"detector.pre_roll_ms", d.PreRollMs},
	} {
		if field.val < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", field.name, field.val))
		}
	}
	if d.EMAAlpha < 0 || d.EMAAlpha > 1 {
		errs = append(errs, fmt.Errorf("detector.ema_alpha %g is out of range (0, 1]", d.EMAAlpha))
	}
	if d.MaxSegmentMs > 0 && d.MinSegmentMs > d.MaxSegmentMs {
		errs = append(errs, fmt.Errorf("detector.min_segment_ms %d exceeds max_segment_ms %d", d.MinSegmentMs, d.MaxSegmentMs))
	}

	if cfg.Ingest.MaxStreams < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_streams must not be negative, got %d", cfg.Ingest.MaxStreams))
	}
	if cfg.Ingest.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("ingest.read_limit_bytes must not be negative, got %d", cfg.Ingest.ReadLimitBytes))
	}

	return errors.Join(errs...)
}
