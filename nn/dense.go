// Package nn implements a minimal fully connected network: Dense layers
// stacked in a Sequential model, trained with mini-batch gradient descent.
//
// The package is sized for the single-neuron regression this module is
// about, but layers of any width can be stacked.
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/synthreg/synthreg/core/parallel"
	"github.com/synthreg/synthreg/pkg/errors"
)

// 行数がこれを超えるとバイアス加算を並列化する
const parallelThreshold = 1000

// Initializer fills a rows×cols kernel.
type Initializer func(rows, cols int, src rand.Source) []float64

// GlorotUniform samples from U(-limit, limit), limit = sqrt(6/(fanIn+fanOut)).
func GlorotUniform(rows, cols int, src rand.Source) []float64 {
	limit := math.Sqrt(6 / float64(rows+cols))
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = dist.Rand()
	}
	return data
}

// Zeros fills the kernel with zeros.
func Zeros(rows, cols int, _ rand.Source) []float64 {
	return make([]float64, rows*cols)
}

// Param is a trainable tensor flattened to a slice. Value and Grad alias the
// layer's storage, so optimizers update the layer in place.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

// DenseOption configures a Dense layer.
type DenseOption func(*Dense)

// WithName sets the layer name shown in summaries and weight exports.
func WithName(name string) DenseOption {
	return func(d *Dense) { d.name = name }
}

// WithKernelInitializer replaces the default Glorot-uniform initializer.
func WithKernelInitializer(init Initializer) DenseOption {
	return func(d *Dense) { d.init = init }
}

// WithSeed makes kernel initialisation deterministic.
func WithSeed(seed uint64) DenseOption {
	return func(d *Dense) { d.src = rand.NewPCG(seed, seed) }
}

// Dense computes XW + b.
type Dense struct {
	name  string
	in    int
	units int
	init  Initializer
	src   rand.Source

	kernel  *mat.Dense // in×units
	bias    []float64  // units
	dKernel *mat.Dense
	dBias   []float64

	input *mat.Dense // 直近の Forward の入力（Backward 用）
}

// NewDense creates a layer mapping in features to units outputs.
func NewDense(in, units int, opts ...DenseOption) (*Dense, error) {
	if in < 1 {
		return nil, errors.NewValidationError("in_features", "must be positive", in)
	}
	if units < 1 {
		return nil, errors.NewValidationError("units", "must be positive", units)
	}

	d := &Dense{
		name:  "dense",
		in:    in,
		units: units,
		init:  GlorotUniform,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.src == nil {
		d.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	d.kernel = mat.NewDense(in, units, d.init(in, units, d.src))
	d.bias = make([]float64, units)
	d.dKernel = mat.NewDense(in, units, nil)
	d.dBias = make([]float64, units)
	return d, nil
}

// Name returns the layer name.
func (d *Dense) Name() string { return d.name }

// InFeatures returns the expected number of input columns.
func (d *Dense) InFeatures() int { return d.in }

// Units returns the number of outputs.
func (d *Dense) Units() int { return d.units }

// ParamCount returns the number of trainable scalars.
func (d *Dense) ParamCount() int { return d.in*d.units + d.units }

// Kernel returns a copy of the weight matrix.
func (d *Dense) Kernel() *mat.Dense { return mat.DenseCopyOf(d.kernel) }

// Bias returns a copy of the bias vector.
func (d *Dense) Bias() []float64 { return append([]float64(nil), d.bias...) }

// SetWeights replaces kernel and bias.
func (d *Dense) SetWeights(kernel mat.Matrix, bias []float64) error {
	r, c := kernel.Dims()
	if r != d.in {
		return errors.NewDimensionError(d.name+".SetWeights", d.in, r, 0)
	}
	if c != d.units {
		return errors.NewDimensionError(d.name+".SetWeights", d.units, c, 1)
	}
	if len(bias) != d.units {
		return errors.NewDimensionError(d.name+".SetWeights", d.units, len(bias), 1)
	}
	d.kernel.Copy(kernel)
	copy(d.bias, bias)
	return nil
}

// Forward computes XW + b for an n×in input and caches X for Backward.
func (d *Dense) Forward(X mat.Matrix) (*mat.Dense, error) {
	n, c := X.Dims()
	if c != d.in {
		return nil, errors.NewDimensionError(d.name+".Forward", d.in, c, 1)
	}
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, d.name+".Forward")
	}

	d.input = mat.DenseCopyOf(X)

	out := mat.NewDense(n, d.units, nil)
	out.Mul(d.input, d.kernel)

	parallel.ParallelizeWithThreshold(n, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			floats.Add(out.RawRowView(i), d.bias)
		}
	})
	return out, nil
}

// Backward accumulates dL/dW = Xᵀ·dOut and dL/db = Σ dOut into the layer's
// gradients and returns dL/dX = dOut·Wᵀ.
func (d *Dense) Backward(dOut mat.Matrix) (*mat.Dense, error) {
	if d.input == nil {
		return nil, errors.NewModelError(d.name+".Backward", "Forward must run first", nil)
	}
	n, c := dOut.Dims()
	inRows, _ := d.input.Dims()
	if n != inRows {
		return nil, errors.NewDimensionError(d.name+".Backward", inRows, n, 0)
	}
	if c != d.units {
		return nil, errors.NewDimensionError(d.name+".Backward", d.units, c, 1)
	}

	d.dKernel.Mul(d.input.T(), dOut)

	for j := range d.dBias {
		d.dBias[j] = 0
	}
	for i := 0; i < n; i++ {
		for j := 0; j < d.units; j++ {
			d.dBias[j] += dOut.At(i, j)
		}
	}

	dX := mat.NewDense(n, d.in, nil)
	dX.Mul(dOut, d.kernel.T())
	return dX, nil
}

// Params exposes kernel and bias with their gradients.
func (d *Dense) Params() []Param {
	return []Param{
		{Name: d.name + "/kernel", Value: d.kernel.RawMatrix().Data, Grad: d.dKernel.RawMatrix().Data},
		{Name: d.name + "/bias", Value: d.bias, Grad: d.dBias},
	}
}

// String describes the layer.
func (d *Dense) String() string {
	return fmt.Sprintf("%s (Dense) %d->%d", d.name, d.in, d.units)
}
