// Package config provides the configuration schema and loader for editscore.
package config

import (
	"github.com/MrWong99/editscore/internal/codebook"
	"github.com/MrWong99/editscore/internal/wer"
)

// LogLevel controls log verbosity.
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

// DuplicatePolicy decides what happens to a word listed twice in a codebook.
type DuplicatePolicy string

const (
	// DuplicatesReject fails the codebook load.
	DuplicatesReject DuplicatePolicy = "reject"

	// DuplicatesLastWins keeps the first position and the last score.
	DuplicatesLastWins DuplicatePolicy = "last_wins"
)

// IsValid reports whether p is a recognised duplicate policy.
func (p DuplicatePolicy) IsValid() bool {
	return p == DuplicatesReject || p == DuplicatesLastWins
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; keys absent from the file keep
// the values of [Default].
type Config struct {
	LogLevel LogLevel       `yaml:"log_level"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	WER      WERConfig      `yaml:"wer"`
	Codebook CodebookConfig `yaml:"codebook"`
	Batch    BatchConfig    `yaml:"batch"`
	Store    StoreConfig    `yaml:"store"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr is the TCP address /metrics is served on (e.g., ":9464").
	// Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// ServiceName is reported as the OpenTelemetry service.name resource.
	ServiceName string `yaml:"service_name"`
}

// WERConfig holds the error rate defaults used by the wer and batch commands.
type WERConfig struct {
	// Mode is the token unit for the batch command. The wer and cer commands
	// fix their own mode.
	Mode wer.Mode `yaml:"mode"`

	// Normalize overrides the mode's default normalisation policy.
	Normalize wer.Normalization `yaml:"normalize"`
}

// CodebookConfig configures codebook scoring.
type CodebookConfig struct {
	// Path is the TSV codebook file.
	Path string `yaml:"path"`

	// Threshold is the largest normalised edit distance that still matches.
	Threshold float64 `yaml:"threshold"`

	// Duplicates selects how repeated words in the file are handled.
	Duplicates DuplicatePolicy `yaml:"duplicates"`

	// Phonetic configures the optional pronunciation-based fallback.
	Phonetic PhoneticConfig `yaml:"phonetic"`
}

// PhoneticConfig configures the phonetic fallback for words the edit
// distance stage leaves unmatched.
type PhoneticConfig struct {
	Enabled bool `yaml:"enabled"`

	// PhoneticThreshold is the minimum Jaro-Winkler similarity for words
	// sharing a Double Metaphone code.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum Jaro-Winkler similarity for words without
	// phonetic overlap.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// BatchConfig configures corpus runs.
type BatchConfig struct {
	// Workers is the number of rows scored concurrently. Zero selects the
	// number of CPUs.
	Workers int `yaml:"workers"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// PostgresDSN is the connection string of the report database. batch
	// -save and report require it.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Metrics: MetricsConfig{
			ServiceName: "editscore",
		},
		WER: WERConfig{
			Mode: wer.ModeWord,
		},
		Codebook: CodebookConfig{
			Threshold:  codebook.DefaultThreshold,
			Duplicates: DuplicatesReject,
			Phonetic: PhoneticConfig{
				PhoneticThreshold: 0.70,
				FuzzyThreshold:    0.85,
			},
		},
	}
}
