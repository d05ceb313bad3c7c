package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthreg/synthreg/core/model"
	"github.com/synthreg/synthreg/internal/config"
	"github.com/synthreg/synthreg/pkg/errors"
	"github.com/synthreg/synthreg/pkg/log"
)

func fastConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.Data.Stop = 40
	cfg.Data.NoiseStd = 2
	cfg.Model.LearningRate = 0.01
	cfg.Model.Epochs = 200
	cfg.Model.BatchSize = 4
	cfg.Model.Verbose = 0
	cfg.EarlyStopping.Enabled = false
	cfg.Output.Dir = dir
	cfg.Output.Plots = false
	return cfg
}

func TestRunReportsTrainedNeuron(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	var out bytes.Buffer

	rep, err := Run(context.Background(), fastConfig(t.TempDir()), Deps{Logger: logger, Out: &out})
	require.NoError(t, err)

	assert.Equal(t, 40, rep.Data.Len())
	assert.Equal(t, 32, rep.Train.Len())
	assert.Equal(t, 8, rep.Test.Len())
	assert.Equal(t, 200, rep.History.Len())
	assert.Len(t, rep.History.ValLoss, 200)
	assert.False(t, rep.EarlyStopped)
	assert.Len(t, rep.Predictions, 8)

	assert.InDelta(t, 3, rep.OLSWeight, 0.2)
	assert.InDelta(t, 3, rep.Weight, 0.5)
	assert.Less(t, rep.TestLoss, 25.0)
	assert.InDelta(t, rep.TestLoss, rep.Metrics.MSE, 1e-9)

	text := out.String()
	for _, want := range []string{
		"Elapsed time:",
		"Test Loss:",
		"Weights [w1]: [[",
		"Bias [w0]: [",
		"Predictions:",
		"Least squares reference:",
		`Model: "sequential"`,
		"Total params: 2",
	} {
		assert.Contains(t, text, want)
	}

	assert.True(t, logger.ContainsMessage("Dataset generated"))
	assert.True(t, logger.ContainsMessage("Training finished"))
	assert.True(t, logger.ContainsField(log.TrainSizeKey, float64(32)))
	assert.Empty(t, rep.Files)
}

func TestRunWithStandardScalerMatchesLeastSquares(t *testing.T) {
	cfg := fastConfig(t.TempDir())
	cfg.Model.Scaler = "standard"
	cfg.Model.Optimizer = "sgd"
	cfg.Model.LearningRate = 0.01
	cfg.Model.ValidationSplit = 0

	var out bytes.Buffer
	logger, _ := log.NewTestLogger(log.LevelWarn)
	rep, err := Run(context.Background(), cfg, Deps{Logger: logger, Out: &out})
	require.NoError(t, err)

	assert.Empty(t, rep.History.ValLoss)
	assert.InDelta(t, rep.OLSWeight, rep.Weight, 0.05)
	assert.InDelta(t, rep.OLSBias, rep.Bias, 1.0)
	assert.Contains(t, out.String(), "In original units:")
}

func TestRunWritesPlotsAndWeights(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	cfg := fastConfig(dir)
	cfg.Model.Epochs = 5
	cfg.Output.Plots = true
	cfg.Output.SaveWeights = true

	logger, _ := log.NewTestLogger(log.LevelWarn)
	rep, err := Run(context.Background(), cfg, Deps{Logger: logger, Out: &bytes.Buffer{}})
	require.NoError(t, err)

	for _, name := range []string{"dataset.png", "split.png", "fit.png", "loss.png", "weights.json"} {
		path := filepath.Join(dir, name)
		assert.Contains(t, rep.Files, path)
		info, err := os.Stat(path)
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	mw, err := model.LoadWeights(filepath.Join(dir, "weights.json"))
	require.NoError(t, err)
	assert.Equal(t, "Sequential", mw.ModelType)
	assert.InDelta(t, rep.Weight, mw.Layers[0].Kernel[0][0], 1e-12)
	assert.InDelta(t, rep.Bias, mw.Layers[0].Bias[0], 1e-12)
}

func TestRunEarlyStopping(t *testing.T) {
	cfg := fastConfig(t.TempDir())
	cfg.EarlyStopping = config.EarlyStoppingConfig{
		Enabled:  true,
		Monitor:  "loss",
		Patience: 2,
		// どの改善も閾値に届かない
		MinDelta: 1e9,
	}

	logger, _ := log.NewTestLogger(log.LevelWarn)
	rep, err := Run(context.Background(), cfg, Deps{Logger: logger, Out: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.True(t, rep.EarlyStopped)
	assert.Equal(t, 3, rep.StoppedEpoch)
	assert.Equal(t, 3, rep.History.Len())
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := fastConfig(t.TempDir())
	cfg.Model.BatchSize = 0

	_, err := Run(context.Background(), cfg, Deps{Out: &bytes.Buffer{}})
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, _ := log.NewTestLogger(log.LevelError)
	rep, err := Run(ctx, fastConfig(t.TempDir()), Deps{Logger: logger, Out: &bytes.Buffer{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NotNil(t, rep.Train)
	assert.True(t, logger.ContainsMessage("Run failed"))
}
