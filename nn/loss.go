package nn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synthreg/synthreg/pkg/errors"
)

// Loss scores predictions against targets and yields the gradient of the
// score with respect to the predictions.
type Loss interface {
	Name() string
	Loss(yTrue, yPred mat.Matrix) (float64, error)
	Gradient(yTrue, yPred mat.Matrix) (*mat.Dense, error)
}

// MeanSquaredError is mean((ŷ−y)²) over every element.
type MeanSquaredError struct{}

// Name implements Loss.
func (MeanSquaredError) Name() string { return "mse" }

// Loss implements Loss.
func (MeanSquaredError) Loss(yTrue, yPred mat.Matrix) (float64, error) {
	diff, err := residual("MeanSquaredError.Loss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	r, c := diff.Dims()
	d := diff.RawMatrix().Data
	return floats.Dot(d, d) / float64(r*c), nil
}

// Gradient implements Loss: 2(ŷ−y)/N.
func (MeanSquaredError) Gradient(yTrue, yPred mat.Matrix) (*mat.Dense, error) {
	diff, err := residual("MeanSquaredError.Gradient", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r, c := diff.Dims()
	diff.Scale(2/float64(r*c), diff)
	return diff, nil
}

// residual returns ŷ−y after checking both have the same non-empty shape.
func residual(op string, yTrue, yPred mat.Matrix) (*mat.Dense, error) {
	rt, ct := yTrue.Dims()
	rp, cp := yPred.Dims()
	if rt == 0 || ct == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	if rt != rp {
		return nil, errors.NewDimensionError(op, rt, rp, 0)
	}
	if ct != cp {
		return nil, errors.NewDimensionError(op, ct, cp, 1)
	}
	var diff mat.Dense
	diff.Sub(yPred, yTrue)
	return &diff, nil
}
