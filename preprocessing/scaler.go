// Package preprocessing は特徴量のスケーリングを提供する。
// どのスケーラーも列ごとのアフィン変換 x' = (x - offset) / scale なので、
// スケール後の空間で学習した一次式を元の単位に戻せる。
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/synthreg/synthreg/core/model"
	"github.com/synthreg/synthreg/pkg/errors"
)

// 標準偏差や範囲がこれ未満の列はスケールしない
const minScale = 1e-8

// Scaler は列ごとのアフィン変換
type Scaler interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (*mat.Dense, error)
	FitTransform(X mat.Matrix) (*mat.Dense, error)
	InverseTransform(X mat.Matrix) (*mat.Dense, error)
	// UnscaleLinear はスケール後の空間の y = w·x' + b を元の x の係数に変換する
	UnscaleLinear(w []float64, b float64) ([]float64, float64, error)
}

// New は名前からスケーラーを作る。"" と "none" は nil を返す
func New(name string) (Scaler, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "standard":
		return NewStandardScaler(true, true), nil
	case "minmax":
		return NewMinMaxScaler([2]float64{0, 1}), nil
	default:
		return nil, errors.NewValidationError("scaler", "must be 'standard', 'minmax' or 'none'", name)
	}
}

// affine は offset と scale を保持する共通部分
type affine struct {
	name   string
	offset []float64
	scale  []float64
	// 出力範囲の下限（MinMaxScaler 用）。x' = (x - offset)/scale + shift
	shift float64
	state *model.StateManager
}

func newAffine(name string) affine {
	return affine{name: name, state: model.NewStateManager()}
}

func (a *affine) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := a.state.RequireFitted(a.name, "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != len(a.offset) {
		return nil, errors.NewDimensionError(a.name+".Transform", len(a.offset), c, 1)
	}

	out := mat.DenseCopyOf(X)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		floats.Sub(row, a.offset)
		floats.Div(row, a.scale)
		floats.AddConst(a.shift, row)
	}
	return out, nil
}

func (a *affine) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := a.state.RequireFitted(a.name, "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != len(a.offset) {
		return nil, errors.NewDimensionError(a.name+".InverseTransform", len(a.offset), c, 1)
	}

	out := mat.DenseCopyOf(X)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		floats.AddConst(-a.shift, row)
		floats.Mul(row, a.scale)
		floats.Add(row, a.offset)
	}
	return out, nil
}

func (a *affine) UnscaleLinear(w []float64, b float64) ([]float64, float64, error) {
	if err := a.state.RequireFitted(a.name, "UnscaleLinear"); err != nil {
		return nil, 0, err
	}
	if len(w) != len(a.offset) {
		return nil, 0, errors.NewDimensionError(a.name+".UnscaleLinear", len(a.offset), len(w), 1)
	}

	// y = Σ w_j ((x_j - o_j)/s_j + shift) + b
	orig := make([]float64, len(w))
	floats.DivTo(orig, w, a.scale)
	bias := b + a.shift*floats.Sum(w) - floats.Dot(orig, a.offset)
	return orig, bias, nil
}

func (a *affine) fitted(offset, scale []float64, nSamples int) {
	for j, s := range scale {
		if s < minScale {
			scale[j] = 1
		}
	}
	a.offset = offset
	a.scale = scale
	a.state.SetFitted(len(offset), nSamples)
}

func checkFitInput(op string, X mat.Matrix) (int, int, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	return r, c, nil
}

// StandardScaler は各列を平均 0、標準偏差 1 に変換する（母標準偏差）
type StandardScaler struct {
	affine
	withMean bool
	withStd  bool
}

// NewStandardScaler は新しいStandardScalerを作成する
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{affine: newAffine("StandardScaler"), withMean: withMean, withStd: withStd}
}

// Fit は列ごとの平均と標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c, err := checkFitInput("StandardScaler.Fit", X)
	if err != nil {
		return err
	}

	offset := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		scale[j] = 1
		if s.withMean {
			offset[j] = mean
		}
		if s.withStd {
			scale[j] = math.Sqrt(variance)
		}
	}
	s.fitted(offset, scale, r)
	return nil
}

// FitTransform は Fit と Transform を続けて行う
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// Mean は学習した平均を返す
func (s *StandardScaler) Mean() []float64 { return append([]float64(nil), s.offset...) }

// Scale は学習した標準偏差を返す
func (s *StandardScaler) Scale() []float64 { return append([]float64(nil), s.scale...) }

func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.withMean, s.withStd)
}

// MinMaxScaler は各列を featureRange の範囲に線形に写す
type MinMaxScaler struct {
	affine
	featureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{affine: newAffine("MinMaxScaler"), featureRange: featureRange}
}

// Fit は列ごとの最小値と最大値を求める
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c, err := checkFitInput("MinMaxScaler.Fit", X)
	if err != nil {
		return err
	}
	lo, hi := m.featureRange[0], m.featureRange[1]
	if !(hi > lo) {
		return errors.NewValidationError("feature_range", "max must be greater than min", m.featureRange)
	}

	offset := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		offset[j] = floats.Min(col)
		scale[j] = (floats.Max(col) - offset[j]) / (hi - lo)
	}
	m.shift = lo
	m.fitted(offset, scale, r)
	return nil
}

// FitTransform は Fit と Transform を続けて行う
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=(%g, %g))", m.featureRange[0], m.featureRange[1])
}
