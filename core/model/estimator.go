// Package model は回帰モデルが共有するインターフェースと学習状態、重みのシリアライズ形式を提供する
package model

import "gonum.org/v1/gonum/mat"

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う（n×1 の行列を返す）
	Predict(X mat.Matrix) (*mat.Dense, error)
}

// Evaluator は損失を計算できるモデルのインターフェース
type Evaluator interface {
	// Evaluate は X, y に対する損失値を返す
	Evaluate(X, y mat.Matrix) (float64, error)
}

// LinearModel は一次式 y = w·x + b で予測するモデル
type LinearModel interface {
	Predictor
	// Coefficients は学習された重み（係数）を返す
	Coefficients() []float64
	// InterceptValue は学習された切片を返す
	InterceptValue() float64
}

// WeightExporter は重みの書き出し・読み込みに対応したモデル
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(w *ModelWeights) error
}
