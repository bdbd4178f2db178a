package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
)

var allStages = []string{"classify", "topics", "report", "store"}

type Config struct {
	InputPath string `yaml:"in"`
	OutputDir string `yaml:"out"`

	TextColumn      string   `yaml:"text_column"`
	IDColumn        string   `yaml:"id_column"`
	Keep            []string `yaml:"keep"`
	CSVSep          string   `yaml:"csv_sep"`
	StripHTML       bool     `yaml:"strip_html"`
	ConvertToString bool     `yaml:"convert_to_string"`

	Concurrency        int `yaml:"concurrency"`
	MinRowsParallelize int `yaml:"min_rows_parallelize"`

	RunID string `yaml:"run_id"`

	CassandraHosts    []string `yaml:"cassandra_hosts"`
	CassandraKeyspace string   `yaml:"cassandra_keyspace"`

	FromStage string `yaml:"from_stage"`
	OnlyStage string `yaml:"only_stage"`
	Overwrite bool   `yaml:"overwrite"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	cliutil.ClassifierFlags `yaml:",inline"`
	cliutil.TopicFlags      `yaml:",inline"`
	cliutil.SummaryFlags    `yaml:",inline"`

	ConfigPath string `yaml:"-"`
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
	}
	if c.TextColumn == "" {
		return errors.New("missing -text-column")
	}
	if c.Concurrency <= 0 || c.MinRowsParallelize < 0 {
		return errors.New("concurrency must be > 0 and min-rows-parallelize >= 0")
	}
	if _, err := cliutil.ParseSeparator(c.CSVSep); err != nil {
		return err
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !slices.Contains(allStages, s) {
			return fmt.Errorf("unknown stage %q (want classify|topics|report|store)", s)
		}
	}
	if len(c.CassandraHosts) > 0 {
		if c.CassandraKeyspace == "" {
			return errors.New("missing -cassandra-keyspace")
		}
		if c.RunID != "" {
			if _, err := uuid.Parse(c.RunID); err != nil {
				return fmt.Errorf("-run-id must be a UUID when storing to Cassandra: %w", err)
			}
		}
	}
	if err := c.ClassifierFlags.Validate(); err != nil {
		return err
	}
	return c.TopicFlags.Validate()
}

// RunDir is the directory holding every file of this run.
func (c Config) RunDir() string {
	return filepath.Join(c.OutputDir, cliutil.FirstNonEmpty(c.Title, cliutil.DefaultTitle(c.InputPath)))
}

func defaultConfig() Config {
	return Config{
		OutputDir:          ".",
		TextColumn:         "text",
		CSVSep:             ",",
		Concurrency:        4,
		MinRowsParallelize: 10000,
		LogLevel:           "info",
		ClassifierFlags:    cliutil.DefaultClassifierFlags(),
		TopicFlags:         cliutil.DefaultTopicFlags(),
		SummaryFlags:       cliutil.DefaultSummaryFlags(),
	}
}
