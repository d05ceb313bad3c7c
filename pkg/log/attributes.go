// Package log defines standard attribute keys for the training pipeline.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that JSON log output can be filtered by prefix.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the model type, e.g. "Sequential", "LinearRegression".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed: "fit", "evaluate", "predict", "split".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package doing the work: "nn", "dataset", "visualize".
	ComponentKey = "ml.component"

	// PhaseKey is the pipeline step: "generate", "training", "evaluation", "plotting".
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	BatchSizeKey = "data.batch_size"
	TrainSizeKey = "data.train_size"
	TestSizeKey  = "data.test_size"
	ValSizeKey   = "data.val_size"
)

// Performance and training metrics.
const (
	DurationMsKey = "perf.duration_ms"
	LossKey       = "metrics.loss"
	ValLossKey    = "metrics.val_loss"
	R2ScoreKey    = "metrics.r2_score"
	EpochKey      = "training.epoch"
	StepKey       = "training.step"
	PatienceKey   = "training.patience"
)

// Configuration.
const (
	LearningRateKey = "hyperparams.learning_rate"
	OptimizerKey    = "hyperparams.optimizer"
	RandomSeedKey   = "config.random_seed"
	OutputPathKey   = "config.output_path"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)
