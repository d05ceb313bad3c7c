// Package dataset generates the synthetic linear data set and partitions it
// into training, validation and test subsets.
package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/synthreg/synthreg/pkg/errors"
)

// GenerateConfig describes y = Slope*x + Intercept + ε, ε ~ N(NoiseMean, NoiseStd)
// sampled at x = Start, Start+Step, ... < Stop.
type GenerateConfig struct {
	Start     float64 `yaml:"start"`
	Stop      float64 `yaml:"stop"`
	Step      float64 `yaml:"step"`
	Intercept float64 `yaml:"intercept"`
	Slope     float64 `yaml:"slope"`
	NoiseMean float64 `yaml:"noise_mean"`
	NoiseStd  float64 `yaml:"noise_std"`
	Seed      uint64  `yaml:"seed"`
}

// DefaultGenerateConfig returns 100 integer samples of y = 3x + 1 + N(0, 5).
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Start:     0,
		Stop:      100,
		Step:      1,
		Intercept: 1,
		Slope:     3,
		NoiseMean: 0,
		NoiseStd:  5,
		Seed:      4500,
	}
}

// Validate checks the sampling range and noise parameters.
func (c GenerateConfig) Validate() error {
	if !(c.Step > 0) {
		return errors.NewValidationError("step", "must be positive", c.Step)
	}
	if !(c.Stop > c.Start) {
		return errors.NewValidationError("stop", "must be greater than start", c.Stop)
	}
	if c.NoiseStd < 0 || math.IsNaN(c.NoiseStd) {
		return errors.NewValidationError("noise_std", "must be non-negative", c.NoiseStd)
	}
	return nil
}

// Dataset is a single-feature regression data set. X and Y always have the
// same length and are not modified after construction.
type Dataset struct {
	X []float64
	Y []float64
}

// Generate samples a data set from cfg. The same Seed yields the same data.
func Generate(cfg GenerateConfig) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := int(math.Ceil((cfg.Stop - cfg.Start) / cfg.Step))
	noise := distuv.Normal{
		Mu:    cfg.NoiseMean,
		Sigma: cfg.NoiseStd,
		Src:   rand.NewPCG(cfg.Seed, cfg.Seed),
	}

	ds := &Dataset{X: make([]float64, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		x := cfg.Start + float64(i)*cfg.Step
		ds.X[i] = x
		ds.Y[i] = cfg.Slope*x + cfg.Intercept + noise.Rand()
	}
	return ds, nil
}

// New builds a Dataset from copies of x and y.
func New(x, y []float64) (*Dataset, error) {
	if len(x) != len(y) {
		return nil, errors.NewDimensionError("dataset.New", len(x), len(y), 0)
	}
	return &Dataset{
		X: append([]float64(nil), x...),
		Y: append([]float64(nil), y...),
	}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.X)
}

// Matrices returns X and y as n×1 column matrices.
func (d *Dataset) Matrices() (X, y *mat.Dense) {
	n := d.Len()
	if n == 0 {
		return &mat.Dense{}, &mat.Dense{}
	}
	X = mat.NewDense(n, 1, append([]float64(nil), d.X...))
	y = mat.NewDense(n, 1, append([]float64(nil), d.Y...))
	return X, y
}

// Subset returns a new Dataset holding the samples at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{X: make([]float64, len(idx)), Y: make([]float64, len(idx))}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// Summary holds descriptive statistics of a data set.
type Summary struct {
	N           int
	MeanX       float64
	MeanY       float64
	StdY        float64
	Correlation float64
}

// Describe computes summary statistics with gonum/stat.
func Describe(d *Dataset) (Summary, error) {
	if d.Len() < 2 {
		return Summary{}, errors.Wrap(errors.ErrEmptyData, "describe needs at least two samples")
	}
	meanY, stdY := stat.MeanStdDev(d.Y, nil)
	return Summary{
		N:           d.Len(),
		MeanX:       stat.Mean(d.X, nil),
		MeanY:       meanY,
		StdY:        stdY,
		Correlation: stat.Correlation(d.X, d.Y, nil),
	}, nil
}
