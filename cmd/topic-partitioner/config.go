package main

import (
	"errors"

	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
)

type Config struct {
	InputPath string   `yaml:"in"`
	OutputDir string   `yaml:"out"`
	Keep      []string `yaml:"keep"`
	RunID     string   `yaml:"run_id"`

	// APIKey is used by the openai embedder.
	APIKey string `yaml:"api_key"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	cliutil.TopicFlags   `yaml:",inline"`
	cliutil.SummaryFlags `yaml:",inline"`

	ConfigPath string `yaml:"-"`
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
	}
	return c.TopicFlags.Validate()
}

func defaultConfig() Config {
	return Config{
		OutputDir:    "report",
		LogLevel:     "info",
		TopicFlags:   cliutil.DefaultTopicFlags(),
		SummaryFlags: cliutil.DefaultSummaryFlags(),
	}
}
