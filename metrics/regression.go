// Package metrics は回帰モデルの評価指標を提供する。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/synthreg/synthreg/pkg/errors"
)

// residuals は yTrue - yPred を返す。長さの検証も行う
func residuals(op string, yTrue, yPred *mat.VecDense) (truth, diff []float64, err error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}

	truth = mat.Col(nil, 0, yTrue)
	diff = make([]float64, n)
	floats.SubTo(diff, truth, mat.Col(nil, 0, yPred))
	return truth, diff, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	_, diff, err := residuals("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}

// MSEMatrix は n×1 行列に対して MSE を計算する
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columns("MSEMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return MSE(t, p)
}

// columns は n×1 行列を VecDense に変換する
func columns(op string, yTrue, yPred mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()

	if rTrue == 0 || cTrue == 0 {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if rTrue != rPred {
		return nil, nil, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	if cTrue != 1 || cPred != 1 {
		return nil, nil, errors.NewValueError(op, "must be a column vector (n×1 matrix)")
	}
	return mat.NewVecDense(rTrue, mat.Col(nil, 0, yTrue)), mat.NewVecDense(rPred, mat.Col(nil, 0, yPred)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	_, diff, err := residuals("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Norm(diff, 1) / float64(len(diff)), nil
}

// R2Score は決定係数（R²）を計算する。yTrue に分散がない場合はエラー
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	truth, diff, err := residuals("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	mean := stat.Mean(truth, nil)
	var tss float64
	for _, v := range truth {
		tss += (v - mean) * (v - mean)
	}
	if tss == 0 {
		return 0, errors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - floats.Dot(diff, diff)/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差を計算する。yTrue が 0 の要素は除外する
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	truth, diff, err := residuals("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	valid := 0
	for i, v := range truth {
		if v == 0 {
			continue
		}
		sum += math.Abs(diff[i]) / math.Abs(v)
		valid++
	}
	if valid == 0 {
		return 0, errors.NewValueError("MAPE", "all yTrue values are zero")
	}
	return sum / float64(valid) * 100, nil
}

// ExplainedVarianceScore は 1 - Var(yTrue - yPred) / Var(yTrue) を計算する
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	truth, diff, err := residuals("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if len(truth) < 2 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "at least two samples are required")
	}

	varTrue := stat.Variance(truth, nil)
	if varTrue == 0 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	return 1 - stat.Variance(diff, nil)/varTrue, nil
}

// Regression はテストセットに対する回帰指標のまとめ
type Regression struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Evaluate は n×1 の正解と予測からまとめて指標を計算する。
// yTrue に分散がない場合 R2 は NaN になる
func Evaluate(yTrue, yPred mat.Matrix) (Regression, error) {
	t, p, err := columns("Evaluate", yTrue, yPred)
	if err != nil {
		return Regression{}, err
	}

	var r Regression
	if r.MSE, err = MSE(t, p); err != nil {
		return Regression{}, err
	}
	r.RMSE = math.Sqrt(r.MSE)
	if r.MAE, err = MAE(t, p); err != nil {
		return Regression{}, err
	}
	if r.R2, err = R2Score(t, p); err != nil {
		r.R2 = math.NaN()
	}
	return r, nil
}
