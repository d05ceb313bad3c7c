package nn

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synthreg/synthreg/core/model"
	"github.com/synthreg/synthreg/pkg/errors"
	"github.com/synthreg/synthreg/pkg/log"
)

const modelVersion = "1.0.0"

// FitConfig controls a training run.
type FitConfig struct {
	Epochs    int
	BatchSize int
	// ValidationSplit holds out the last fraction of rows, before shuffling.
	ValidationSplit float64
	// ValidationData overrides ValidationSplit when set.
	ValidationData *ValidationData
	Shuffle        bool
	Seed           uint64
	Callbacks      []Callback
	// Verbose 0 is silent, 1 logs every epoch.
	Verbose int
}

// ValidationData is an explicit validation set.
type ValidationData struct {
	X mat.Matrix
	Y mat.Matrix
}

// DefaultFitConfig mirrors Keras' Model.fit defaults.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:    1,
		BatchSize: 32,
		Shuffle:   true,
		Verbose:   1,
	}
}

func (c FitConfig) validate() error {
	if c.Epochs < 1 {
		return errors.NewValidationError("epochs", "must be positive", c.Epochs)
	}
	if c.BatchSize < 1 {
		return errors.NewValidationError("batch_size", "must be positive", c.BatchSize)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 || math.IsNaN(c.ValidationSplit) {
		return errors.NewValidationError("validation_split", "must be in [0, 1)", c.ValidationSplit)
	}
	return nil
}

// SequentialOption configures a Sequential model.
type SequentialOption func(*Sequential)

// WithModelName sets the name shown by Summary.
func WithModelName(name string) SequentialOption {
	return func(s *Sequential) { s.name = name }
}

// WithLogger sets the logger used for per-epoch progress.
func WithLogger(l log.Logger) SequentialOption {
	return func(s *Sequential) { s.logger = l }
}

// Sequential is a linear stack of Dense layers.
type Sequential struct {
	name   string
	layers []*Dense
	logger log.Logger

	optimizer Optimizer
	loss      Loss
	state     *model.StateManager
}

// NewSequential stacks layers, checking that adjacent widths agree.
func NewSequential(layers []*Dense, opts ...SequentialOption) (*Sequential, error) {
	if len(layers) == 0 {
		return nil, errors.NewValueError("NewSequential", "at least one layer is required")
	}
	for i := 1; i < len(layers); i++ {
		if layers[i].InFeatures() != layers[i-1].Units() {
			return nil, errors.NewDimensionError("NewSequential", layers[i-1].Units(), layers[i].InFeatures(), 1)
		}
	}

	// 重み名が衝突しないよう、重複したレイヤー名には未使用の連番を付ける
	seen := make(map[string]bool, len(layers))
	added := make(map[*Dense]bool, len(layers))
	for i, l := range layers {
		if added[l] {
			return nil, errors.NewValueError("NewSequential", fmt.Sprintf("layer %d (%s) appears more than once", i, l.name))
		}
		added[l] = true
		if seen[l.name] {
			base := l.name
			for k := 1; ; k++ {
				if candidate := fmt.Sprintf("%s_%d", base, k); !seen[candidate] {
					l.name = candidate
					break
				}
			}
		}
		seen[l.name] = true
	}

	s := &Sequential{
		name:   "sequential",
		layers: layers,
		state:  model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLogger()
	}
	s.logger = s.logger.With(log.ModelNameKey, "Sequential", log.ComponentKey, "nn")
	return s, nil
}

// Layers returns the model's layers.
func (s *Sequential) Layers() []*Dense { return s.layers }

// InFeatures is the number of input columns.
func (s *Sequential) InFeatures() int { return s.layers[0].InFeatures() }

// Units is the number of output columns.
func (s *Sequential) Units() int { return s.layers[len(s.layers)-1].Units() }

// Compile attaches an optimizer and a loss.
func (s *Sequential) Compile(opt Optimizer, loss Loss) error {
	if opt == nil {
		return errors.NewValueError("Sequential.Compile", "optimizer is nil")
	}
	if loss == nil {
		return errors.NewValueError("Sequential.Compile", "loss is nil")
	}
	s.optimizer = opt
	s.loss = loss
	return nil
}

// Fit trains the model with mini-batch gradient descent.
func (s *Sequential) Fit(ctx context.Context, X, y mat.Matrix, cfg FitConfig) (hist *History, err error) {
	defer errors.Recover(&err, "Sequential.Fit")

	if s.optimizer == nil || s.loss == nil {
		return nil, errors.NewModelError("Sequential.Fit", "not compiled", errors.ErrNotCompiled)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := s.checkXY("Sequential.Fit", X, y); err != nil {
		return nil, err
	}

	fitX, fitY, valX, valY, err := s.splitValidation(X, y, cfg)
	if err != nil {
		return nil, err
	}
	nFit, _ := fitX.Dims()

	for _, cb := range cfg.Callbacks {
		if b, ok := cb.(TrainBeginner); ok {
			b.OnTrainBegin()
		}
	}

	s.logger.Debug("Training started",
		log.OperationKey, "fit",
		log.SamplesKey, nFit,
		log.FeaturesKey, s.InFeatures(),
		log.ValSizeKey, rowsOf(valX),
		log.BatchSizeKey, cfg.BatchSize,
		log.OptimizerKey, s.optimizer.Name(),
		log.LearningRateKey, s.optimizer.LearningRate(),
	)

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	order := make([]int, nFit)
	for i := range order {
		order[i] = i
	}

	hist = &History{}
	stopped := false
	step := 0
	for epoch := 0; epoch < cfg.Epochs && !stopped; epoch++ {
		start := time.Now()
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum float64
		for b := 0; b < nFit; b += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return hist, errors.Wrapf(err, "training interrupted at epoch %d", epoch+1)
			}
			end := b + cfg.BatchSize
			if end > nFit {
				end = nFit
			}
			bx, by := gatherRows(fitX, fitY, order[b:end])

			batchLoss, err := s.trainBatch(bx, by)
			if err != nil {
				return hist, err
			}
			step++
			if err := errors.CheckScalar("batch_loss", batchLoss, step); err != nil {
				return hist, err
			}
			lossSum += batchLoss * float64(end-b)
		}

		logs := Logs{"loss": lossSum / float64(nFit)}
		if valX != nil {
			valLoss, err := s.lossOn(valX, valY)
			if err != nil {
				return hist, err
			}
			if err := errors.CheckScalar("val_loss", valLoss, step); err != nil {
				return hist, err
			}
			logs["val_loss"] = valLoss
		}
		hist.record(epoch, logs)

		if cfg.Verbose > 0 {
			fields := []any{
				log.EpochKey, epoch + 1,
				log.StepKey, step,
				log.LossKey, logs["loss"],
				log.DurationMsKey, time.Since(start).Milliseconds(),
			}
			if v, ok := logs["val_loss"]; ok {
				fields = append(fields, log.ValLossKey, v)
			}
			s.logger.Info(fmt.Sprintf("Epoch %d/%d", epoch+1, cfg.Epochs), fields...)
		}

		for _, cb := range cfg.Callbacks {
			if cb.OnEpochEnd(epoch, logs) {
				stopped = true
			}
		}
	}

	for _, cb := range cfg.Callbacks {
		if e, ok := cb.(TrainEnder); ok {
			e.OnTrainEnd()
		}
	}

	if !stopped && hist.Len() > 1 && hist.Loss[hist.Len()-1] < hist.Loss[hist.Len()-2] {
		errors.Warn(errors.NewConvergenceWarning(s.optimizer.Name(), hist.Len(),
			"training loss was still decreasing at the final epoch"))
	}

	s.state.SetFitted(s.InFeatures(), nFit)
	return hist, nil
}

// trainBatch runs forward, backward and one optimizer step.
func (s *Sequential) trainBatch(X, y *mat.Dense) (float64, error) {
	pred, err := s.forward(X)
	if err != nil {
		return 0, err
	}
	batchLoss, err := s.loss.Loss(y, pred)
	if err != nil {
		return 0, err
	}
	grad, err := s.loss.Gradient(y, pred)
	if err != nil {
		return 0, err
	}

	var upstream mat.Matrix = grad
	params := make([]Param, 0, 2*len(s.layers))
	for i := len(s.layers) - 1; i >= 0; i-- {
		dX, err := s.layers[i].Backward(upstream)
		if err != nil {
			return 0, err
		}
		upstream = dX
		params = append(params, s.layers[i].Params()...)
	}
	if err := s.optimizer.Step(params); err != nil {
		return 0, err
	}
	return batchLoss, nil
}

func (s *Sequential) forward(X mat.Matrix) (*mat.Dense, error) {
	var out mat.Matrix = X
	var dense *mat.Dense
	for _, l := range s.layers {
		var err error
		dense, err = l.Forward(out)
		if err != nil {
			return nil, err
		}
		out = dense
	}
	return dense, nil
}

func (s *Sequential) lossOn(X, y mat.Matrix) (float64, error) {
	pred, err := s.forward(X)
	if err != nil {
		return 0, err
	}
	return s.loss.Loss(y, pred)
}

// Evaluate returns the compiled loss on X, y.
func (s *Sequential) Evaluate(X, y mat.Matrix) (loss float64, err error) {
	defer errors.Recover(&err, "Sequential.Evaluate")

	if s.loss == nil {
		return 0, errors.NewModelError("Sequential.Evaluate", "not compiled", errors.ErrNotCompiled)
	}
	if err := s.state.RequireFitted("Sequential", "Evaluate"); err != nil {
		return 0, err
	}
	if err := s.checkXY("Sequential.Evaluate", X, y); err != nil {
		return 0, err
	}
	pred, err := s.forward(X)
	if err != nil {
		return 0, err
	}
	if err := checkPredictions("Sequential.Evaluate", pred); err != nil {
		return 0, err
	}
	return s.loss.Loss(y, pred)
}

// Predict returns an n×Units matrix of predictions.
func (s *Sequential) Predict(X mat.Matrix) (pred *mat.Dense, err error) {
	defer errors.Recover(&err, "Sequential.Predict")

	if err := s.state.RequireFitted("Sequential", "Predict"); err != nil {
		return nil, err
	}
	if _, c := X.Dims(); c != s.InFeatures() {
		return nil, errors.NewDimensionError("Sequential.Predict", s.InFeatures(), c, 1)
	}
	pred, err = s.forward(X)
	if err != nil {
		return nil, err
	}
	if err := checkPredictions("Sequential.Predict", pred); err != nil {
		return nil, err
	}
	return pred, nil
}

// checkPredictions は NaN/Inf を含む出力（壊れた重みの兆候）を拒否する
func checkPredictions(op string, pred *mat.Dense) error {
	r, c := pred.Dims()
	return errors.CheckMatrix(op, pred, r, c, 0)
}

// IsFitted reports whether Fit or ImportWeights has completed.
func (s *Sequential) IsFitted() bool { return s.state.IsFitted() }

// Coefficients returns the effective weights of the whole stack, which is a
// single linear map when the output has one unit.
func (s *Sequential) Coefficients() []float64 {
	w, _ := s.effective()
	return w
}

// InterceptValue returns the effective bias of the whole stack.
func (s *Sequential) InterceptValue() float64 {
	_, b := s.effective()
	return b
}

// effective folds the stack into y = x·w + b for a single output unit.
func (s *Sequential) effective() ([]float64, float64) {
	if s.Units() != 1 {
		return nil, math.NaN()
	}
	W := s.layers[0].Kernel()
	bias := mat.NewDense(1, s.layers[0].Units(), s.layers[0].Bias())
	for _, l := range s.layers[1:] {
		var nextW mat.Dense
		nextW.Mul(W, l.kernel)
		W = &nextW

		var nextB mat.Dense
		nextB.Mul(bias, l.kernel)
		floats.Add(nextB.RawRowView(0), l.bias)
		bias = &nextB
	}
	return mat.Col(nil, 0, W), bias.At(0, 0)
}

// ParamCount returns the total number of trainable scalars.
func (s *Sequential) ParamCount() int {
	total := 0
	for _, l := range s.layers {
		total += l.ParamCount()
	}
	return total
}

// Summary renders a layer table in the familiar Keras layout.
func (s *Sequential) Summary() string {
	var b strings.Builder
	rule := strings.Repeat("_", 65)
	fmt.Fprintf(&b, "Model: %q\n", s.name)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, " %-28s%-26s%s\n", "Layer (type)", "Output Shape", "Param #")
	b.WriteString(strings.Repeat("=", 65) + "\n")
	for i, l := range s.layers {
		fmt.Fprintf(&b, " %-28s%-26s%d\n",
			fmt.Sprintf("%s (Dense)", l.Name()),
			fmt.Sprintf("(None, %d)", l.Units()),
			l.ParamCount())
		if i < len(s.layers)-1 {
			b.WriteString(" " + strings.Repeat("-", 63) + "\n")
		}
	}
	b.WriteString(strings.Repeat("=", 65) + "\n")
	fmt.Fprintf(&b, "Total params: %d\n", s.ParamCount())
	fmt.Fprintf(&b, "Trainable params: %d\n", s.ParamCount())
	b.WriteString("Non-trainable params: 0\n")
	b.WriteString(rule + "\n")
	return b.String()
}

// ExportWeights snapshots every layer's kernel and bias.
func (s *Sequential) ExportWeights() (*model.ModelWeights, error) {
	if err := s.state.RequireFitted("Sequential", "ExportWeights"); err != nil {
		return nil, err
	}

	mw := &model.ModelWeights{
		ModelType:       "Sequential",
		Version:         modelVersion,
		IsFitted:        true,
		Hyperparameters: map[string]interface{}{},
		Metadata:        map[string]interface{}{},
	}
	if s.optimizer != nil {
		mw.Hyperparameters["optimizer"] = s.optimizer.Name()
		mw.Hyperparameters["learning_rate"] = s.optimizer.LearningRate()
	}
	if s.loss != nil {
		mw.Hyperparameters["loss"] = s.loss.Name()
	}
	_, nSamples := s.state.Dimensions()
	mw.Metadata["n_samples"] = nSamples

	for _, l := range s.layers {
		kernel := make([][]float64, l.InFeatures())
		for r := range kernel {
			kernel[r] = mat.Row(nil, r, l.kernel)
		}
		mw.Layers = append(mw.Layers, model.LayerWeights{
			Name:   l.Name(),
			Kernel: kernel,
			Bias:   l.Bias(),
		})
	}
	return mw, nil
}

// ImportWeights loads weights produced by ExportWeights and marks the model fitted.
func (s *Sequential) ImportWeights(mw *model.ModelWeights) error {
	if err := mw.Validate(); err != nil {
		return err
	}
	if mw.ModelType != "Sequential" {
		return errors.NewValueError("Sequential.ImportWeights", "unexpected model type "+mw.ModelType)
	}
	if len(mw.Layers) != len(s.layers) {
		return errors.NewDimensionError("Sequential.ImportWeights", len(s.layers), len(mw.Layers), 0)
	}

	// 途中まで書き込まれたモデルを残さないよう、全レイヤーの形状を先に確認する
	kernels := make([]*mat.Dense, len(mw.Layers))
	for i, lw := range mw.Layers {
		l := s.layers[i]
		rows := len(lw.Kernel)
		if rows != l.InFeatures() {
			return errors.NewDimensionError(l.Name()+".ImportWeights", l.InFeatures(), rows, 0)
		}
		data := make([]float64, 0, rows*l.Units())
		for _, row := range lw.Kernel {
			if len(row) != l.Units() {
				return errors.NewDimensionError(l.Name()+".ImportWeights", l.Units(), len(row), 1)
			}
			data = append(data, row...)
		}
		if len(lw.Bias) != l.Units() {
			return errors.NewDimensionError(l.Name()+".ImportWeights", l.Units(), len(lw.Bias), 1)
		}
		kernels[i] = mat.NewDense(rows, l.Units(), data)
	}
	for i, lw := range mw.Layers {
		if err := s.layers[i].SetWeights(kernels[i], lw.Bias); err != nil {
			return err
		}
	}

	nSamples := 0
	if v, ok := mw.Metadata["n_samples"].(float64); ok {
		nSamples = int(v)
	} else if v, ok := mw.Metadata["n_samples"].(int); ok {
		nSamples = v
	}
	s.state.SetFitted(s.InFeatures(), nSamples)
	return nil
}

func (s *Sequential) checkXY(op string, X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if c != s.InFeatures() {
		return errors.NewDimensionError(op, s.InFeatures(), c, 1)
	}
	if ry != r {
		return errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != s.Units() {
		return errors.NewDimensionError(op, s.Units(), cy, 1)
	}
	return nil
}

// splitValidation returns the training rows and, when configured, the
// validation rows taken from the tail of X, y.
func (s *Sequential) splitValidation(X, y mat.Matrix, cfg FitConfig) (fitX, fitY, valX, valY *mat.Dense, err error) {
	fitX, fitY = mat.DenseCopyOf(X), mat.DenseCopyOf(y)

	if cfg.ValidationData != nil {
		if err := s.checkXY("Sequential.Fit(validation_data)", cfg.ValidationData.X, cfg.ValidationData.Y); err != nil {
			return nil, nil, nil, nil, err
		}
		return fitX, fitY, mat.DenseCopyOf(cfg.ValidationData.X), mat.DenseCopyOf(cfg.ValidationData.Y), nil
	}
	if cfg.ValidationSplit == 0 {
		return fitX, fitY, nil, nil, nil
	}

	n, c := fitX.Dims()
	_, cy := fitY.Dims()
	splitAt := int(math.Floor(float64(n) * (1 - cfg.ValidationSplit)))
	if splitAt < 1 || splitAt >= n {
		return nil, nil, nil, nil, errors.NewValidationError("validation_split",
			"leaves an empty training or validation set", cfg.ValidationSplit)
	}

	valX = mat.DenseCopyOf(fitX.Slice(splitAt, n, 0, c))
	valY = mat.DenseCopyOf(fitY.Slice(splitAt, n, 0, cy))
	fitX = mat.DenseCopyOf(fitX.Slice(0, splitAt, 0, c))
	fitY = mat.DenseCopyOf(fitY.Slice(0, splitAt, 0, cy))
	return fitX, fitY, valX, valY, nil
}

func gatherRows(X, y *mat.Dense, idx []int) (*mat.Dense, *mat.Dense) {
	_, c := X.Dims()
	_, cy := y.Dims()
	bx := mat.NewDense(len(idx), c, nil)
	by := mat.NewDense(len(idx), cy, nil)
	for i, j := range idx {
		bx.SetRow(i, X.RawRowView(j))
		by.SetRow(i, y.RawRowView(j))
	}
	return bx, by
}

func rowsOf(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}
