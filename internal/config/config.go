// Package config loads the run configuration of the synthreg command from
// YAML. Every field has a default equal to the reference experiment, so an
// empty file (or no file) reproduces it.
package config

import (
	"bytes"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/synthreg/synthreg/dataset"
	"github.com/synthreg/synthreg/pkg/errors"
	"github.com/synthreg/synthreg/pkg/log"
	"github.com/synthreg/synthreg/preprocessing"
)

// Config is the complete run configuration.
type Config struct {
	Data          dataset.GenerateConfig `yaml:"data"`
	Split         SplitConfig            `yaml:"split"`
	Model         ModelConfig            `yaml:"model"`
	EarlyStopping EarlyStoppingConfig    `yaml:"early_stopping"`
	Output        OutputConfig           `yaml:"output"`
	Log           LogConfig              `yaml:"log"`
}

// SplitConfig controls the train/test split.
type SplitConfig struct {
	TestSize float64 `yaml:"test_size"`
	Seed     uint64  `yaml:"seed"`
	Shuffle  bool    `yaml:"shuffle"`
}

// ModelConfig controls the network and its training.
type ModelConfig struct {
	InitSeed uint64 `yaml:"init_seed"`
	// Scaler standardises x before training: "none", "standard" or "minmax".
	Scaler          string  `yaml:"scaler"`
	Optimizer       string  `yaml:"optimizer"`
	LearningRate    float64 `yaml:"learning_rate"`
	Momentum        float64 `yaml:"momentum"`
	ClipNorm        float64 `yaml:"clip_norm"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
	Shuffle         bool    `yaml:"shuffle"`
	ShuffleSeed     uint64  `yaml:"shuffle_seed"`
	Verbose         int     `yaml:"verbose"`
}

// EarlyStoppingConfig configures the early stopping callback.
type EarlyStoppingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Monitor  string  `yaml:"monitor"`
	Patience int     `yaml:"patience"`
	MinDelta float64 `yaml:"min_delta"`
	Verbose  bool    `yaml:"verbose"`
}

// OutputConfig controls the files written by a run.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Plots       bool   `yaml:"plots"`
	PlotFormat  string `yaml:"plot_format"`
	SaveWeights bool   `yaml:"save_weights"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the reference experiment: 100 samples of 3x + 1 + N(0, 5),
// an 80/20 split, Adam(200) on MSE for up to 3000 epochs in batches of 5,
// 10% validation and early stopping on val_loss with patience 6.
func Default() Config {
	return Config{
		Data: dataset.DefaultGenerateConfig(),
		Split: SplitConfig{
			TestSize: 0.2,
			Seed:     42,
			Shuffle:  true,
		},
		Model: ModelConfig{
			InitSeed:        4500,
			Scaler:          "none",
			Optimizer:       "adam",
			LearningRate:    200,
			Epochs:          3000,
			BatchSize:       5,
			ValidationSplit: 0.1,
			Shuffle:         true,
			ShuffleSeed:     42,
			Verbose:         1,
		},
		EarlyStopping: EarlyStoppingConfig{
			Enabled:  true,
			Monitor:  "val_loss",
			Patience: 6,
			Verbose:  true,
		},
		Output: OutputConfig{
			Dir:        "out",
			Plots:      true,
			PlotFormat: "png",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config.load %s", path)
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config.load %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that the training code would otherwise reject late.
func (c Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if !(c.Split.TestSize > 0) || math.IsInf(c.Split.TestSize, 0) {
		return errors.NewValidationError("split.test_size", "must be positive", c.Split.TestSize)
	}

	m := c.Model
	switch m.Optimizer {
	case "adam", "sgd":
	default:
		return errors.NewValidationError("model.optimizer", "must be 'adam' or 'sgd'", m.Optimizer)
	}
	if _, err := preprocessing.New(m.Scaler); err != nil {
		return err
	}
	if !(m.LearningRate > 0) {
		return errors.NewValidationError("model.learning_rate", "must be positive", m.LearningRate)
	}
	if m.Epochs < 1 {
		return errors.NewValidationError("model.epochs", "must be positive", m.Epochs)
	}
	if m.BatchSize < 1 {
		return errors.NewValidationError("model.batch_size", "must be positive", m.BatchSize)
	}
	if m.ValidationSplit < 0 || m.ValidationSplit >= 1 {
		return errors.NewValidationError("model.validation_split", "must be in [0, 1)", m.ValidationSplit)
	}

	if c.EarlyStopping.Enabled && c.EarlyStopping.Patience < 0 {
		return errors.NewValidationError("early_stopping.patience", "must not be negative", c.EarlyStopping.Patience)
	}

	switch c.Output.PlotFormat {
	case "png", "svg", "pdf":
	default:
		return errors.NewValidationError("output.plot_format", "must be png, svg or pdf", c.Output.PlotFormat)
	}
	if c.Output.Dir == "" && (c.Output.Plots || c.Output.SaveWeights) {
		return errors.NewValidationError("output.dir", "is required when writing plots or weights", c.Output.Dir)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.NewValidationError("log.format", "must be 'console' or 'json'", c.Log.Format)
	}
	return nil
}
