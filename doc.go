// Package synthreg fits a single linear neuron to a synthetic, noisy line and
// compares it with the closed-form least-squares fit.
//
// The experiment generates x = 0, 1, …, 99 and y = 3x + 1 + ε with
// ε ~ N(0, 5), splits the samples 80/20, trains Dense(1) with Adam on the
// mean squared error using early stopping on the validation loss, and
// reports the test loss, the learned weight and bias, the predictions and a
// model summary. Figures of the data set, the split, the fitted line and the
// loss history are written as image files.
//
// # Packages
//
//   - dataset: synthetic data generation and train/test splitting
//   - nn: Dense layers, Sequential model, MSE loss, Adam and SGD, callbacks
//   - linear: ordinary least squares baseline
//   - metrics: regression metrics (MSE, RMSE, MAE, R²)
//   - preprocessing: standard and min-max scaling
//   - visualize: plots rendered with gonum/plot
//   - internal/app: the end-to-end run used by the command
//   - cmd/synthreg: command line entry point
//
// # Quick Start
//
//	ds, _ := dataset.Generate(dataset.DefaultGenerateConfig())
//	train, test, _ := dataset.TrainTestSplit(ds, 0.2, 42, true)
//	X, y := train.Matrices()
//
//	dense, _ := nn.NewDense(1, 1)
//	net, _ := nn.NewSequential([]*nn.Dense{dense})
//	opt, _ := nn.NewAdam(0.1)
//	_ = net.Compile(opt, nn.MeanSquaredError{})
//
//	hist, err := net.Fit(ctx, X, y, nn.FitConfig{
//	    Epochs: 3000, BatchSize: 5, ValidationSplit: 0.1,
//	    Callbacks: []nn.Callback{nn.NewEarlyStopping("val_loss", 6, true)},
//	})
//
// # Error Handling
//
// Errors carry stack traces from github.com/cockroachdb/errors and can be
// inspected with errors.As:
//
//	var nf *errors.NotFittedError
//	if errors.As(err, &nf) { ... }
//
// Warnings such as ConvergenceWarning are routed to the zerolog logger once
// log.SetLogger has been called.
package synthreg
