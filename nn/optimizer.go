package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/synthreg/synthreg/pkg/errors"
)

// Optimizer updates parameters in place from their gradients.
type Optimizer interface {
	Name() string
	LearningRate() float64
	Step(params []Param) error
}

// OptimizerOption configures an optimizer.
type OptimizerOption func(*optimizerBase)

// WithClipNorm rescales each parameter's gradient to at most maxNorm (L2).
func WithClipNorm(maxNorm float64) OptimizerOption {
	return func(o *optimizerBase) { o.clipNorm = maxNorm }
}

type optimizerBase struct {
	lr       float64
	clipNorm float64
}

func (o *optimizerBase) grad(p Param) []float64 {
	return errors.ClipGradient(p.Grad, o.clipNorm)
}

// slot はパラメータの記憶領域そのものを状態のキーにする。
// 同名のレイヤーを持つ別モデルでオプティマイザを使い回しても状態は混ざらない
func slot(p Param) *float64 {
	if len(p.Value) == 0 {
		return nil
	}
	return &p.Value[0]
}

func newBase(name string, lr float64, opts []OptimizerOption) (optimizerBase, error) {
	if !(lr > 0) || math.IsInf(lr, 0) {
		return optimizerBase{}, errors.NewValidationError(name+".learning_rate", "must be a positive finite number", lr)
	}
	base := optimizerBase{lr: lr}
	for _, opt := range opts {
		opt(&base)
	}
	return base, nil
}

// Adam is the Adam optimizer with Keras defaults (β1=0.9, β2=0.999, ε=1e-7).
type Adam struct {
	optimizerBase
	beta1, beta2, epsilon float64

	step int
	m    map[*float64][]float64
	v    map[*float64][]float64
}

// NewAdam creates an Adam optimizer.
func NewAdam(lr float64, opts ...OptimizerOption) (*Adam, error) {
	base, err := newBase("adam", lr, opts)
	if err != nil {
		return nil, err
	}
	return &Adam{
		optimizerBase: base,
		beta1:         0.9,
		beta2:         0.999,
		epsilon:       1e-7,
		m:             map[*float64][]float64{},
		v:             map[*float64][]float64{},
	}, nil
}

// Name implements Optimizer.
func (o *Adam) Name() string { return "adam" }

// LearningRate implements Optimizer.
func (o *Adam) LearningRate() float64 { return o.lr }

// Iterations returns the number of steps taken.
func (o *Adam) Iterations() int { return o.step }

// Step implements Optimizer.
//
//	α_t = lr·sqrt(1−β2^t)/(1−β1^t)
//	θ  -= α_t·m/(sqrt(v)+ε)
func (o *Adam) Step(params []Param) error {
	o.step++
	t := float64(o.step)
	alpha := o.lr * math.Sqrt(1-math.Pow(o.beta2, t)) / (1 - math.Pow(o.beta1, t))

	for _, p := range params {
		g := o.grad(p)
		key := slot(p)
		m, ok := o.m[key]
		if !ok {
			m = make([]float64, len(p.Value))
			o.m[key] = m
		}
		v, ok := o.v[key]
		if !ok {
			v = make([]float64, len(p.Value))
			o.v[key] = v
		}
		if len(m) != len(g) || len(p.Value) != len(g) {
			return errors.NewDimensionError("Adam.Step", len(p.Value), len(g), 1)
		}

		for i, gi := range g {
			m[i] += (gi - m[i]) * (1 - o.beta1)
			v[i] += (gi*gi - v[i]) * (1 - o.beta2)
			p.Value[i] -= alpha * m[i] / (math.Sqrt(v[i]) + o.epsilon)
		}
	}
	return nil
}

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	optimizerBase
	momentum float64
	velocity map[*float64][]float64
}

// NewSGD creates an SGD optimizer. momentum must be in [0, 1).
func NewSGD(lr, momentum float64, opts ...OptimizerOption) (*SGD, error) {
	base, err := newBase("sgd", lr, opts)
	if err != nil {
		return nil, err
	}
	if momentum < 0 || momentum >= 1 {
		return nil, errors.NewValidationError("sgd.momentum", "must be in [0, 1)", momentum)
	}
	return &SGD{optimizerBase: base, momentum: momentum, velocity: map[*float64][]float64{}}, nil
}

// Name implements Optimizer.
func (o *SGD) Name() string { return "sgd" }

// LearningRate implements Optimizer.
func (o *SGD) LearningRate() float64 { return o.lr }

// Step implements Optimizer.
func (o *SGD) Step(params []Param) error {
	for _, p := range params {
		g := o.grad(p)
		if len(p.Value) != len(g) {
			return errors.NewDimensionError("SGD.Step", len(p.Value), len(g), 1)
		}
		if o.momentum == 0 {
			floats.AddScaled(p.Value, -o.lr, g)
			continue
		}
		key := slot(p)
		vel, ok := o.velocity[key]
		if !ok {
			vel = make([]float64, len(p.Value))
			o.velocity[key] = vel
		}
		// v = μv − lr·g; θ += v
		floats.Scale(o.momentum, vel)
		floats.AddScaled(vel, -o.lr, g)
		floats.Add(p.Value, vel)
	}
	return nil
}

// NewOptimizer builds an optimizer by name ("adam" or "sgd").
func NewOptimizer(name string, lr, momentum, clipNorm float64) (Optimizer, error) {
	switch name {
	case "adam", "":
		return NewAdam(lr, WithClipNorm(clipNorm))
	case "sgd":
		return NewSGD(lr, momentum, WithClipNorm(clipNorm))
	default:
		return nil, errors.NewValidationError("optimizer", "must be 'adam' or 'sgd'", name)
	}
}
