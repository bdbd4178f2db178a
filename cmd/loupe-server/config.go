package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	MaxTexts        int           `yaml:"max_texts"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Schedule is a standard 5-field cron spec; empty disables the watch job.
	Schedule string `yaml:"schedule"`
	WatchIn  string `yaml:"watch_in"`
	OutDir   string `yaml:"out"`

	TextColumn      string   `yaml:"text_column"`
	IDColumn        string   `yaml:"id_column"`
	Keep            []string `yaml:"keep"`
	CSVSep          string   `yaml:"csv_sep"`
	StripHTML       bool     `yaml:"strip_html"`
	ConvertToString bool     `yaml:"convert_to_string"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	cliutil.ClassifierFlags `yaml:",inline"`
	cliutil.TopicFlags      `yaml:",inline"`
	cliutil.SummaryFlags    `yaml:",inline"`

	ConfigPath string `yaml:"-"`
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if c.MaxTexts <= 0 {
		return errors.New("max-texts must be > 0")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid -schedule: %w", err)
		}
		if c.WatchIn == "" || c.OutDir == "" {
			return errors.New("-schedule needs -watch-in and -out")
		}
		if c.TextColumn == "" {
			return errors.New("missing -text-column")
		}
		if _, err := cliutil.ParseSeparator(c.CSVSep); err != nil {
			return err
		}
	}
	if err := c.ClassifierFlags.Validate(); err != nil {
		return err
	}
	return c.TopicFlags.Validate()
}

func defaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxTexts:        1000,
		ShutdownTimeout: 10 * time.Second,
		OutDir:          "out",
		TextColumn:      "text",
		CSVSep:          ",",
		LogLevel:        "info",
		ClassifierFlags: cliutil.DefaultClassifierFlags(),
		TopicFlags:      cliutil.DefaultTopicFlags(),
		SummaryFlags:    cliutil.DefaultSummaryFlags(),
	}
}
