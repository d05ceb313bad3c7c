// Package app runs the synthetic regression experiment end to end: generate,
// split, train a single neuron, evaluate, report and plot.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"

	"github.com/synthreg/synthreg/core/model"
	"github.com/synthreg/synthreg/dataset"
	"github.com/synthreg/synthreg/internal/config"
	"github.com/synthreg/synthreg/linear"
	"github.com/synthreg/synthreg/metrics"
	"github.com/synthreg/synthreg/nn"
	"github.com/synthreg/synthreg/pkg/errors"
	"github.com/synthreg/synthreg/pkg/log"
	"github.com/synthreg/synthreg/preprocessing"
	"github.com/synthreg/synthreg/visualize"
)

// Deps are the side-effect sinks of a run.
type Deps struct {
	Logger log.Logger
	// Out receives the human readable report. Defaults to os.Stdout.
	Out io.Writer
}

// Report carries every number the run prints.
type Report struct {
	Data  *dataset.Dataset
	Train *dataset.Dataset
	Test  *dataset.Dataset

	History      *nn.History
	Elapsed      time.Duration
	EarlyStopped bool
	StoppedEpoch int // 1-based, 0 when training ran all epochs

	TestLoss    float64
	Weight      float64
	Bias        float64
	Predictions []float64
	Metrics     metrics.Regression

	// 最小二乗法による基準解
	OLSWeight float64
	OLSBias   float64
	OLSLoss   float64

	Summary string
	Files   []string
}

// Run executes the experiment described by cfg.
func Run(ctx context.Context, cfg config.Config, deps Deps) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.With(log.ComponentKey, "app")
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}

	r := &runner{cfg: cfg, logger: logger, out: out, report: &Report{}}
	if err := r.run(ctx); err != nil {
		logger.Error("Run failed", err)
		return r.report, err
	}
	return r.report, nil
}

type runner struct {
	cfg    config.Config
	logger log.Logger
	out    io.Writer
	report *Report
}

func (r *runner) run(ctx context.Context) error {
	cfg := r.cfg
	title := visualize.Title(cfg.Data.Slope, cfg.Data.Intercept, cfg.Data.NoiseMean, cfg.Data.NoiseStd)

	if cfg.Output.Plots || cfg.Output.SaveWeights {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return errors.Wrapf(err, "create output dir %s", cfg.Output.Dir)
		}
	}

	// 1-2. データ生成
	ds, err := dataset.Generate(cfg.Data)
	if err != nil {
		return err
	}
	r.report.Data = ds
	fields := []any{log.PhaseKey, "generate", log.SamplesKey, ds.Len(), log.RandomSeedKey, cfg.Data.Seed}
	if s, err := dataset.Describe(ds); err == nil {
		fields = append(fields, "mean_y", s.MeanY, "std_y", s.StdY, "corr", s.Correlation)
	}
	r.logger.Info("Dataset generated", fields...)

	if err := r.plot("dataset", func() (*plot.Plot, error) { return visualize.DatasetPlot(ds, title) }); err != nil {
		return err
	}

	// 3-4. 分割
	train, test, err := dataset.TrainTestSplit(ds, cfg.Split.TestSize, cfg.Split.Seed, cfg.Split.Shuffle)
	if err != nil {
		return err
	}
	r.report.Train, r.report.Test = train, test
	r.logger.Info("Dataset split",
		log.PhaseKey, "split",
		log.TrainSizeKey, train.Len(),
		log.TestSizeKey, test.Len(),
		log.RandomSeedKey, cfg.Split.Seed,
	)
	if err := r.plot("split", func() (*plot.Plot, error) { return visualize.SplitPlot(train, test, title) }); err != nil {
		return err
	}

	// 5-8. モデル構築と学習
	net, err := r.build()
	if err != nil {
		return err
	}
	xTrain, yTrain := train.Matrices()
	xTest, yTest := test.Matrices()
	xFit, xEval, scaler, err := r.scale(xTrain, xTest)
	if err != nil {
		return err
	}

	var callbacks []nn.Callback
	var es *nn.EarlyStopping
	if cfg.EarlyStopping.Enabled {
		es = nn.NewEarlyStopping(cfg.EarlyStopping.Monitor, cfg.EarlyStopping.Patience, cfg.EarlyStopping.Verbose)
		es.MinDelta = cfg.EarlyStopping.MinDelta
		es.Logger = r.logger
		callbacks = append(callbacks, es)
	}

	start := time.Now()
	hist, err := net.Fit(ctx, xFit, yTrain, nn.FitConfig{
		Epochs:          cfg.Model.Epochs,
		BatchSize:       cfg.Model.BatchSize,
		ValidationSplit: cfg.Model.ValidationSplit,
		Shuffle:         cfg.Model.Shuffle,
		Seed:            cfg.Model.ShuffleSeed,
		Callbacks:       callbacks,
		Verbose:         cfg.Model.Verbose,
	})
	r.report.Elapsed = time.Since(start)
	r.report.History = hist
	if err != nil {
		return errors.Wrap(err, "train")
	}
	if es != nil && es.Stopped() {
		r.report.EarlyStopped = true
		r.report.StoppedEpoch = es.StoppedEpoch() + 1
	}
	r.logger.Info("Training finished",
		log.PhaseKey, "fit",
		log.EpochKey, hist.Len(),
		log.LossKey, hist.FinalLoss(),
		log.DurationMsKey, r.report.Elapsed.Milliseconds(),
	)
	fmt.Fprintf(r.out, "\nElapsed time: %v sec\n", r.report.Elapsed.Seconds())

	// 9. テスト損失
	testLoss, err := net.Evaluate(xEval, yTest)
	if err != nil {
		return err
	}
	r.report.TestLoss = testLoss
	fmt.Fprintf(r.out, "\nTest Loss: %v\n", testLoss)

	// 10. 重み
	dense := net.Layers()[0]
	fmt.Fprintf(r.out, "Weights [w1]: %v\n", denseRows(dense.Kernel()))
	fmt.Fprintf(r.out, "Bias [w0]: %v\n", dense.Bias())
	w, b := net.Coefficients(), net.InterceptValue()
	if scaler != nil {
		if w, b, err = scaler.UnscaleLinear(w, b); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "In original units: w1=%v w0=%v\n", w[0], b)
	}
	r.report.Weight, r.report.Bias = w[0], b

	// 11. 予測
	pred, err := net.Predict(xEval)
	if err != nil {
		return err
	}
	r.report.Predictions = mat.Col(nil, 0, pred)
	if r.report.Metrics, err = metrics.Evaluate(yTest, pred); err != nil {
		return err
	}
	r.printPredictions()

	if err := r.reference(xTrain, yTrain, xTest, yTest); err != nil {
		return err
	}

	// 12. 可視化
	if err := r.plot("fit", func() (*plot.Plot, error) {
		return visualize.FitPlot(train, test, r.report.Predictions, "")
	}); err != nil {
		return err
	}
	if err := r.plot("loss", func() (*plot.Plot, error) { return visualize.LossPlot(hist, "Training history") }); err != nil {
		return err
	}

	if cfg.Output.SaveWeights {
		mw, err := net.ExportWeights()
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.Output.Dir, "weights.json")
		if err := model.SaveWeights(path, mw); err != nil {
			return err
		}
		r.report.Files = append(r.report.Files, path)
		r.logger.Info("Weights saved", log.OutputPathKey, path)
	}

	// 13. サマリ
	r.report.Summary = net.Summary()
	fmt.Fprint(r.out, "\n"+r.report.Summary)
	return nil
}

// scale fits the configured scaler on the training inputs. Without a scaler
// the inputs are returned unchanged.
func (r *runner) scale(xTrain, xTest *mat.Dense) (*mat.Dense, *mat.Dense, preprocessing.Scaler, error) {
	scaler, err := preprocessing.New(r.cfg.Model.Scaler)
	if err != nil || scaler == nil {
		return xTrain, xTest, nil, err
	}
	xFit, err := scaler.FitTransform(xTrain)
	if err != nil {
		return nil, nil, nil, err
	}
	xEval, err := scaler.Transform(xTest)
	if err != nil {
		return nil, nil, nil, err
	}
	r.logger.Debug("Inputs scaled", log.PhaseKey, "preprocess", "scaler", r.cfg.Model.Scaler)
	return xFit, xEval, scaler, nil
}

func (r *runner) build() (*nn.Sequential, error) {
	m := r.cfg.Model
	dense, err := nn.NewDense(1, 1, nn.WithSeed(m.InitSeed))
	if err != nil {
		return nil, err
	}
	net, err := nn.NewSequential([]*nn.Dense{dense}, nn.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	opt, err := nn.NewOptimizer(m.Optimizer, m.LearningRate, m.Momentum, m.ClipNorm)
	if err != nil {
		return nil, err
	}
	if err := net.Compile(opt, nn.MeanSquaredError{}); err != nil {
		return nil, err
	}
	r.logger.Debug("Model compiled",
		log.OptimizerKey, opt.Name(),
		log.LearningRateKey, opt.LearningRate(),
		log.RandomSeedKey, m.InitSeed,
	)
	return net, nil
}

// reference fits the closed-form least-squares line on the same training data.
func (r *runner) reference(xTrain, yTrain, xTest, yTest *mat.Dense) error {
	ols := linear.NewLinearRegression()
	if err := ols.Fit(xTrain, yTrain); err != nil {
		return errors.Wrap(err, "least squares reference")
	}
	loss, err := ols.Evaluate(xTest, yTest)
	if err != nil {
		return err
	}
	r.report.OLSWeight = ols.Coefficients()[0]
	r.report.OLSBias = ols.InterceptValue()
	r.report.OLSLoss = loss

	fmt.Fprintf(r.out, "\nLeast squares reference: w1=%.6g w0=%.6g test loss=%.6g\n",
		r.report.OLSWeight, r.report.OLSBias, loss)
	fmt.Fprintf(r.out, "Neuron vs least squares: Δw1=%.3g Δw0=%.3g\n",
		r.report.Weight-r.report.OLSWeight, r.report.Bias-r.report.OLSBias)
	return nil
}

func (r *runner) printPredictions() {
	fmt.Fprintln(r.out, "\nPredictions:")
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "x\ty\tŷ\t")
	for i, p := range r.report.Predictions {
		fmt.Fprintf(tw, "%g\t%.4f\t%.4f\t\n", r.report.Test.X[i], r.report.Test.Y[i], p)
	}
	_ = tw.Flush()

	m := r.report.Metrics
	fmt.Fprintf(r.out, "MSE=%.6g RMSE=%.6g MAE=%.6g R2=%.6g\n", m.MSE, m.RMSE, m.MAE, m.R2)
}

// plot builds and saves one figure when plotting is enabled.
func (r *runner) plot(name string, build func() (*plot.Plot, error)) error {
	if !r.cfg.Output.Plots {
		return nil
	}
	p, err := build()
	if err != nil {
		return errors.Wrapf(err, "plot %s", name)
	}
	path := filepath.Join(r.cfg.Output.Dir, name+"."+r.cfg.Output.PlotFormat)
	if err := visualize.Save(p, path); err != nil {
		return err
	}
	r.report.Files = append(r.report.Files, path)
	r.logger.Debug("Plot saved", log.OutputPathKey, path)
	return nil
}

func denseRows(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
