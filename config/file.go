package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the optional YAML configuration file. Zero values leave
// the corresponding setting untouched.
type FileConfig struct {
	BaseURL            string    `yaml:"base_url"`
	Category           string    `yaml:"category"`
	Pages              int       `yaml:"pages"`
	OutputDir          string    `yaml:"output_dir"`
	Parallelism        int       `yaml:"parallelism"`
	PageParallelism    int       `yaml:"page_parallelism"`
	Timeout            string    `yaml:"timeout"`
	Delay              string    `yaml:"delay"`
	RandomDelay        string    `yaml:"random_delay"`
	UserAgent          string    `yaml:"user_agent"`
	AcceptLanguage     string    `yaml:"accept_language"`
	RespectRobotsTxt   *bool     `yaml:"respect_robots_txt"`
	RestrictToBaseHost *bool     `yaml:"restrict_to_base_host"`
	DisambiguateTitles *bool     `yaml:"disambiguate_titles"`
	MetricsAddr        string    `yaml:"metrics_addr"`
	Selectors          Selectors `yaml:"selectors"`
}

// LoadFile reads a YAML configuration file. A missing file is reported as an
// error since the caller asked for it explicitly.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// Apply overlays the non-zero file values onto cfg.
func (fc *FileConfig) Apply(cfg *Config) error {
	if fc == nil {
		return nil
	}

	setString(&cfg.BaseURL, fc.BaseURL)
	setString(&cfg.Category, fc.Category)
	setString(&cfg.OutputDir, fc.OutputDir)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.AcceptLanguage, fc.AcceptLanguage)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)

	if fc.Pages != 0 {
		cfg.MaxPages = fc.Pages
	}
	if fc.Parallelism != 0 {
		cfg.Parallelism = fc.Parallelism
	}
	if fc.PageParallelism != 0 {
		cfg.PageParallelism = fc.PageParallelism
	}
	if fc.RespectRobotsTxt != nil {
		cfg.RespectRobotsTxt = *fc.RespectRobotsTxt
	}
	if fc.RestrictToBaseHost != nil {
		cfg.RestrictToBaseHost = *fc.RestrictToBaseHost
	}
	if fc.DisambiguateTitles != nil {
		cfg.DisambiguateTitles = *fc.DisambiguateTitles
	}

	durations := []struct {
		name   string
		raw    string
		target *time.Duration
	}{
		{"timeout", fc.Timeout, &cfg.Timeout},
		{"delay", fc.Delay, &cfg.Delay},
		{"random_delay", fc.RandomDelay, &cfg.RandomDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return invalid(d.name, "%v", err)
		}
		*d.target = parsed
	}

	setString(&cfg.Selectors.Card, fc.Selectors.Card)
	setString(&cfg.Selectors.Category, fc.Selectors.Category)
	setString(&cfg.Selectors.Link, fc.Selectors.Link)
	setString(&cfg.Selectors.Title, fc.Selectors.Title)
	setString(&cfg.Selectors.Body, fc.Selectors.Body)
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
