// Package linear は閉形式の最小二乗法による線形回帰を提供する。
// ニューロンの学習結果と比較する基準解として使う。
package linear

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/synthreg/synthreg/core/model"
	"github.com/synthreg/synthreg/core/parallel"
	"github.com/synthreg/synthreg/metrics"
	"github.com/synthreg/synthreg/pkg/errors"
)

const (
	modelType    = "LinearRegression"
	modelVersion = "1.0.0"

	// 行数がこれを超えると計画行列の構築を並列化する
	parallelThreshold = 1000
)

// LinearRegression は線形回帰モデル
type LinearRegression struct {
	fitIntercept bool
	solver       Solver
	rankTol      float64

	coef      []float64
	intercept float64
	singular  []float64 // 計画行列の特異値
	rank      int

	state *model.StateManager
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		fitIntercept: true,
		solver:       SolverQR,
		rankTol:      1e-12,
		state:        model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる。
// 切片ありの場合は X の先頭に 1 の列を追加した計画行列 A について min‖Aw − y‖ を解く
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}
	if lr.solver != SolverQR && lr.solver != SolverCholesky {
		return errors.NewValidationError("solver", "must be 'qr' or 'cholesky'", string(lr.solver))
	}

	A := lr.design(X)
	_, cols := A.Dims()
	if r < cols {
		return errors.NewModelError("LinearRegression.Fit", "fewer samples than parameters", errors.ErrSingularMatrix)
	}

	// 特異値からランクを求め、退化した列があれば特異行列として扱う
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDNone); !ok {
		return errors.NewModelError("LinearRegression.Fit", "svd failed", errors.ErrSingularMatrix)
	}
	singular := svd.Values(nil)
	rank := 0
	for _, s := range singular {
		if s > lr.rankTol*singular[0] {
			rank++
		}
	}
	if rank < cols {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	yCol := mat.NewVecDense(r, mat.Col(nil, 0, y))
	w, err := lr.solve(A, yCol)
	if err != nil {
		return err
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", w, 0); err != nil {
		return err
	}

	// 失敗した Fit では前回の学習結果を残すため、ここで初めて書き込む
	lr.singular, lr.rank = singular, rank
	if lr.fitIntercept {
		lr.intercept = w[0]
		lr.coef = w[1:]
	} else {
		lr.intercept = 0
		lr.coef = w
	}

	lr.state.SetFitted(c, r)
	return nil
}

// design は切片列を含む計画行列を作る
func (lr *LinearRegression) design(X mat.Matrix) *mat.Dense {
	r, c := X.Dims()
	offset := 0
	if lr.fitIntercept {
		offset = 1
	}

	A := mat.NewDense(r, c+offset, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if offset == 1 {
				A.Set(i, 0, 1.0)
			}
			for j := 0; j < c; j++ {
				A.Set(i, j+offset, X.At(i, j))
			}
		}
	})
	return A
}

func (lr *LinearRegression) solve(A *mat.Dense, y *mat.VecDense) ([]float64, error) {
	_, cols := A.Dims()
	w := mat.NewVecDense(cols, nil)

	switch lr.solver {
	case SolverCholesky:
		var ata mat.SymDense
		ata.SymOuterK(1, A.T())

		var chol mat.Cholesky
		if ok := chol.Factorize(&ata); !ok {
			return nil, errors.NewModelError("LinearRegression.Fit", "normal equations are not positive definite", errors.ErrSingularMatrix)
		}
		var aty mat.VecDense
		aty.MulVec(A.T(), y)
		if err := chol.SolveVecTo(w, &aty); err != nil {
			return nil, errors.NewModelError("LinearRegression.Fit", "cholesky solve", err)
		}
	default:
		var qr mat.QR
		qr.Factorize(A)
		if err := qr.SolveVecTo(w, false, y); err != nil {
			return nil, errors.NewModelError("LinearRegression.Fit", "qr solve", err)
		}
	}
	return mat.Col(nil, 0, w), nil
}

// Predict は入力データに対する予測 y = Xw + b を返す
func (lr *LinearRegression) Predict(X mat.Matrix) (*mat.Dense, error) {
	if err := lr.state.RequireFitted(modelType, "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if r == 0 {
		return nil, errors.NewModelError("LinearRegression.Predict", "empty data", errors.ErrEmptyData)
	}
	if c != len(lr.coef) {
		return nil, errors.NewDimensionError("LinearRegression.Predict", len(lr.coef), c, 1)
	}

	pred := mat.NewDense(r, 1, nil)
	pred.Mul(X, mat.NewVecDense(c, lr.coef))
	col := pred.RawMatrix().Data
	floats.AddConst(lr.intercept, col)
	return pred, nil
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	if ry, _ := y.Dims(); ry != len(pred.RawMatrix().Data) {
		return 0, errors.NewDimensionError("LinearRegression.Score", len(pred.RawMatrix().Data), ry, 0)
	}
	n := len(pred.RawMatrix().Data)
	return metrics.R2Score(mat.NewVecDense(n, mat.Col(nil, 0, y)), mat.NewVecDense(n, pred.RawMatrix().Data))
}

// Evaluate は平均二乗誤差を返す
func (lr *LinearRegression) Evaluate(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.MSEMatrix(y, pred)
}

// Coefficients は学習された重み（係数）のコピーを返す
func (lr *LinearRegression) Coefficients() []float64 {
	return append([]float64(nil), lr.coef...)
}

// InterceptValue は学習された切片を返す
func (lr *LinearRegression) InterceptValue() float64 { return lr.intercept }

// SingularValues は直近の Fit での計画行列の特異値を返す
func (lr *LinearRegression) SingularValues() []float64 {
	return append([]float64(nil), lr.singular...)
}

// Rank は計画行列のランク
func (lr *LinearRegression) Rank() int { return lr.rank }

// IsFitted はモデルが学習済みかどうかを返す
func (lr *LinearRegression) IsFitted() bool { return lr.state.IsFitted() }

// ExportWeights は係数を 1 層分の重みとして書き出す
func (lr *LinearRegression) ExportWeights() (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted(modelType, "ExportWeights"); err != nil {
		return nil, err
	}
	kernel := make([][]float64, len(lr.coef))
	for i, w := range lr.coef {
		kernel[i] = []float64{w}
	}
	_, nSamples := lr.state.Dimensions()
	return &model.ModelWeights{
		ModelType: modelType,
		Version:   modelVersion,
		IsFitted:  true,
		Layers:    []model.LayerWeights{{Name: "linear", Kernel: kernel, Bias: []float64{lr.intercept}}},
		Hyperparameters: map[string]interface{}{
			"fit_intercept": lr.fitIntercept,
			"solver":        string(lr.solver),
		},
		Metadata: map[string]interface{}{"n_samples": nSamples, "rank": lr.rank},
	}, nil
}

// ImportWeights は ExportWeights の出力を読み込み学習済み状態にする
func (lr *LinearRegression) ImportWeights(mw *model.ModelWeights) error {
	if err := mw.Validate(); err != nil {
		return err
	}
	if mw.ModelType != modelType {
		return errors.NewValueError("LinearRegression.ImportWeights", "unexpected model type "+mw.ModelType)
	}
	if len(mw.Layers) != 1 || len(mw.Layers[0].Bias) != 1 {
		return errors.NewValueError("LinearRegression.ImportWeights", "expected a single layer with one output")
	}

	layer := mw.Layers[0]
	lr.coef = make([]float64, len(layer.Kernel))
	for i, row := range layer.Kernel {
		lr.coef[i] = row[0]
	}
	lr.intercept = layer.Bias[0]
	lr.state.SetFitted(len(lr.coef), 0)
	return nil
}
