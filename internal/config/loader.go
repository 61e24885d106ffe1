package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
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

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Metrics.ListenAddr != "" && cfg.Metrics.ServiceName == "" {
		errs = append(errs, errors.New("metrics.service_name is required when metrics.listen_addr is set"))
	}

	if !cfg.WER.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("wer.mode %q is invalid; valid values: word, char", cfg.WER.Mode))
	}
	if !cfg.WER.Normalize.IsValid() {
		errs = append(errs, fmt.Errorf("wer.normalize %q is invalid; valid values: reference, none, both", cfg.WER.Normalize))
	}

	cb := cfg.Codebook
	if cb.Threshold < 0 || cb.Threshold > 1 {
		errs = append(errs, fmt.Errorf("codebook.threshold %.2f is out of range [0, 1]", cb.Threshold))
	}
	if !cb.Duplicates.IsValid() {
		errs = append(errs, fmt.Errorf("codebook.duplicates %q is invalid; valid values: reject, last_wins", cb.Duplicates))
	}
	if cb.Phonetic.Enabled {
		if t := cb.Phonetic.PhoneticThreshold; t <= 0 || t > 1 {
			errs = append(errs, fmt.Errorf("codebook.phonetic.phonetic_threshold %.2f is out of range (0, 1]", t))
		}
		if t := cb.Phonetic.FuzzyThreshold; t <= 0 || t > 1 {
			errs = append(errs, fmt.Errorf("codebook.phonetic.fuzzy_threshold %.2f is out of range (0, 1]", t))
		}
		if cb.Path == "" {
			slog.Warn("codebook.phonetic is enabled but codebook.path is empty; pass -codebook to the score command")
		}
	}

	if cfg.Batch.Workers < 0 {
		errs = append(errs, fmt.Errorf("batch.workers %d must not be negative", cfg.Batch.Workers))
	}

	return errors.Join(errs...)
}
