// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

// Package config loads the configuration of the missingpedia tools.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brawer/missingpedia/internal/fetch"
	"github.com/brawer/missingpedia/internal/wikidump"
)

// Configuration validation errors.
var (
	ErrMissingDSN          = errors.New("database.dsn is required")
	ErrInvalidBaseURL      = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidWorkers      = errors.New("pageviews.workers must be at least 1")
	ErrInvalidMaxAttempts  = errors.New("pageviews.retry.max_attempts must be at least 1")
	ErrInvalidBaseDelay    = errors.New("pageviews.retry.base_delay_ms must be non-negative")
	ErrInvalidTimeout      = errors.New("pageviews.retry.timeout_sec must be non-negative")
	ErrInvalidJitter       = errors.New("pageviews.retry.jitter must be between 0 and 1")
	ErrInvalidBatchSize    = errors.New("loader.batch_size must be at least 1")
	ErrInvalidChunkSize    = errors.New("loader.stage_chunk_size must be at least 1")
	ErrInvalidLanguage     = errors.New("invalid language code")
	ErrInvalidMaxDepth     = errors.New("hierarchy.max_depth must be non-negative")
	ErrInvalidLimit        = errors.New("hierarchy limits must be at least 1")
	ErrEmptyExclusion      = errors.New("exclusion markers must not be empty")
	ErrMissingDatabaseFile = errors.New("sqlite DSN needs a file path")
)

// Config is the configuration of the missingpedia tools.
type Config struct {
	Database   DatabaseConfig      `yaml:"database"`
	Dumps      DumpsConfig         `yaml:"dumps"`
	Pageviews  PageviewsConfig     `yaml:"pageviews"`
	Loader     LoaderConfig        `yaml:"loader"`
	Exclusions map[string][]string `yaml:"exclusions"`
	Hierarchy  HierarchyConfig     `yaml:"hierarchy"`
}

type DatabaseConfig struct {
	// Either "postgres://..." or "sqlite:<path>".
	DSN string `yaml:"dsn"`
}

type DumpsConfig struct {
	BaseURL string `yaml:"base_url"`
}

type PageviewsConfig struct {
	BaseURL string      `yaml:"base_url"`
	Workers int         `yaml:"workers"`
	Retry   RetryPolicy `yaml:"retry"`
}

// RetryPolicy defines retry behavior for shard downloads.
type RetryPolicy struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	Jitter      float64 `yaml:"jitter"`
}

type LoaderConfig struct {
	BatchSize      int `yaml:"batch_size"`
	StageChunkSize int `yaml:"stage_chunk_size"`
}

type HierarchyConfig struct {
	MaxDepth          int    `yaml:"max_depth"`
	ReferenceLanguage string `yaml:"reference_language"`
	GapLimit          int    `yaml:"gap_limit"`
	ExpandRowLimit    int    `yaml:"expand_row_limit"`
}

// Default returns the configuration that applies to anything
// a configuration file does not say otherwise.
func Default() *Config {
	return &Config{
		Dumps: DumpsConfig{BaseURL: "https://dumps.wikimedia.org"},
		Pageviews: PageviewsConfig{
			BaseURL: "https://dumps.wikimedia.org/other/pageviews/",
			Workers: 4,
			Retry: RetryPolicy{
				MaxAttempts: 5,
				BaseDelayMs: 1000,
				TimeoutSec:  10,
			},
		},
		Loader: LoaderConfig{BatchSize: 5000, StageChunkSize: 10000},
		Exclusions: map[string][]string{
			// Lists and disambiguation pages.
			"he": {"רשימ", "פירושונים"},
		},
		Hierarchy: HierarchyConfig{
			MaxDepth:          2,
			ReferenceLanguage: "en",
			GapLimit:          20,
			ExpandRowLimit:    500,
		},
	}
}

// Load reads a YAML configuration file on top of the defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return ErrMissingDSN
	}
	if c.Database.DSN == "sqlite:" {
		return ErrMissingDatabaseFile
	}

	for _, u := range []string{c.Dumps.BaseURL, c.Pageviews.BaseURL} {
		if err := checkBaseURL(u); err != nil {
			return err
		}
	}

	if c.Pageviews.Workers < 1 {
		return ErrInvalidWorkers
	}
	r := c.Pageviews.Retry
	if r.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if r.BaseDelayMs < 0 {
		return ErrInvalidBaseDelay
	}
	if r.TimeoutSec < 0 {
		return ErrInvalidTimeout
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return ErrInvalidJitter
	}

	if c.Loader.BatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.Loader.StageChunkSize < 1 {
		return ErrInvalidChunkSize
	}

	for lang, markers := range c.Exclusions {
		if err := wikidump.CheckLanguage(lang); err != nil {
			return fmt.Errorf("%w: exclusions.%s", ErrInvalidLanguage, lang)
		}
		for _, m := range markers {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("%w: exclusions.%s", ErrEmptyExclusion, lang)
			}
		}
	}

	h := c.Hierarchy
	if h.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if err := wikidump.CheckLanguage(h.ReferenceLanguage); err != nil {
		return fmt.Errorf("%w: hierarchy.reference_language", ErrInvalidLanguage)
	}
	if h.GapLimit < 1 || h.ExpandRowLimit < 1 {
		return ErrInvalidLimit
	}

	return nil
}

func checkBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, s)
	}
	return nil
}

// Policy returns the retry policy for pageview shards.
func (r RetryPolicy) Policy() fetch.Policy {
	return fetch.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   time.Duration(r.BaseDelayMs) * time.Millisecond,
		Timeout:     time.Duration(r.TimeoutSec) * time.Second,
		Jitter:      r.Jitter,
	}
}

// ExclusionsFor returns the title markers that keep pages
// of a language edition from becoming articles.
func (c *Config) ExclusionsFor(lang string) []string {
	return c.Exclusions[lang]
}
