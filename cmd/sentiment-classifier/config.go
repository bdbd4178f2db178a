package main

import (
	"errors"

	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
)

type Config struct {
	InputPath  string   `yaml:"in"`
	OutputPath string   `yaml:"out"`
	TextColumn string   `yaml:"text_column"`
	IDColumn   string   `yaml:"id_column"`
	Keep       []string `yaml:"keep"`
	CSVSep     string   `yaml:"csv_sep"`

	StripHTML       bool `yaml:"strip_html"`
	ConvertToString bool `yaml:"convert_to_string"`

	Concurrency        int `yaml:"concurrency"`
	MinRowsParallelize int `yaml:"min_rows_parallelize"`

	Overwrite bool   `yaml:"overwrite"`
	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`

	cliutil.ClassifierFlags `yaml:",inline"`

	ConfigPath string `yaml:"-"`
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if c.TextColumn == "" {
		return errors.New("missing -text-column")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.MinRowsParallelize < 0 {
		return errors.New("min-rows-parallelize must be >= 0")
	}
	if _, err := cliutil.ParseSeparator(c.CSVSep); err != nil {
		return err
	}
	return c.ClassifierFlags.Validate()
}

func defaultConfig() Config {
	return Config{
		OutputPath:         "annotated.jsonl",
		TextColumn:         "text",
		CSVSep:             ",",
		Concurrency:        4,
		MinRowsParallelize: 10000,
		LogLevel:           "info",
		ClassifierFlags:    cliutil.DefaultClassifierFlags(),
	}
}
