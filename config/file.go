package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "1.5s"-style strings or plain numbers of seconds in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got kind %d", value.Kind)
	}
	if f, err := strconv.ParseFloat(value.Value, 64); err == nil {
		d.Duration = time.Duration(f * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// fileConfig is the YAML overlay. Every field is optional; set fields
// override the environment.
type fileConfig struct {
	Scraper struct {
		DelayMin     *Duration `yaml:"delay_min"`
		DelayMax     *Duration `yaml:"delay_max"`
		RetryBase    *Duration `yaml:"retry_base"`
		RetryCap     *Duration `yaml:"retry_cap"`
		MaxRetries   *int      `yaml:"max_retries"`
		NavTimeout   *Duration `yaml:"nav_timeout"`
		BatchSize    *int      `yaml:"batch_size"`
		MaxPages     *int      `yaml:"max_pages"`
		Concurrency  *int      `yaml:"concurrency"`
		HTTPFallback *bool     `yaml:"http_fallback"`
	} `yaml:"scraper"`
	Noise NoiseConfig  `yaml:"noise"`
	Sites []SiteConfig `yaml:"sites"`
}

// loadFile applies the YAML overlay at path.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.apply(&fc)
	return nil
}

func (c *Config) apply(fc *fileConfig) {
	s := &c.Scraper
	setDuration(&s.DelayMin, fc.Scraper.DelayMin)
	setDuration(&s.DelayMax, fc.Scraper.DelayMax)
	setDuration(&s.RetryBase, fc.Scraper.RetryBase)
	setDuration(&s.RetryCap, fc.Scraper.RetryCap)
	setDuration(&s.NavTimeout, fc.Scraper.NavTimeout)
	if fc.Scraper.MaxRetries != nil {
		s.MaxRetries = *fc.Scraper.MaxRetries
	}
	if fc.Scraper.BatchSize != nil {
		s.BatchSize = *fc.Scraper.BatchSize
	}
	if fc.Scraper.MaxPages != nil {
		s.MaxPages = *fc.Scraper.MaxPages
	}
	if fc.Scraper.Concurrency != nil {
		s.Concurrency = *fc.Scraper.Concurrency
	}
	if fc.Scraper.HTTPFallback != nil {
		s.HTTPFallback = *fc.Scraper.HTTPFallback
	}

	c.Noise.Words = append(c.Noise.Words, fc.Noise.Words...)
	c.Noise.Phrases = append(c.Noise.Phrases, fc.Noise.Phrases...)
	c.Sites = append(c.Sites, fc.Sites...)
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
