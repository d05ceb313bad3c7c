package model

import (
	"encoding/json"
	"os"

	"github.com/synthreg/synthreg/pkg/errors"
)

// LayerWeights は1層分の重み
type LayerWeights struct {
	Name string `json:"name"`
	// Kernel は inFeatures×units の重み行列（行優先）
	Kernel [][]float64 `json:"kernel"`
	Bias   []float64   `json:"bias"`
}

// ModelWeights はモデルの重みを表す構造体（シリアライゼーション用）
type ModelWeights struct {
	// ModelType はモデルの種類（Sequential, LinearRegression 等）
	ModelType string `json:"model_type"`

	// Version は互換性チェック用のバージョン
	Version string `json:"version"`

	Layers []LayerWeights `json:"layers"`

	// Hyperparameters は学習時のハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`

	// Metadata は学習時の統計等
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, mw); err != nil {
		return errors.Wrap(err, "decode model weights")
	}
	return nil
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if mw.Version == "" {
		return errors.NewValidationError("version", "is required", mw.Version)
	}
	if !mw.IsFitted && len(mw.Layers) > 0 {
		return errors.NewValueError("ModelWeights.Validate", "unfitted model should not have layers")
	}
	if mw.IsFitted && len(mw.Layers) == 0 {
		return errors.NewValueError("ModelWeights.Validate", "fitted model must have layers")
	}

	for _, l := range mw.Layers {
		if len(l.Kernel) == 0 {
			return errors.NewValueError("ModelWeights.Validate", "layer "+l.Name+" has an empty kernel")
		}
		units := len(l.Kernel[0])
		for _, row := range l.Kernel {
			if len(row) != units {
				return errors.NewDimensionError("ModelWeights.Validate", units, len(row), 1)
			}
		}
		if len(l.Bias) != units {
			return errors.NewDimensionError("ModelWeights.Validate", units, len(l.Bias), 1)
		}
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		IsFitted:        mw.IsFitted,
		Layers:          make([]LayerWeights, len(mw.Layers)),
		Hyperparameters: make(map[string]interface{}, len(mw.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(mw.Metadata)),
	}

	for i, l := range mw.Layers {
		kernel := make([][]float64, len(l.Kernel))
		for r, row := range l.Kernel {
			kernel[r] = append([]float64(nil), row...)
		}
		clone.Layers[i] = LayerWeights{
			Name:   l.Name,
			Kernel: kernel,
			Bias:   append([]float64(nil), l.Bias...),
		}
	}
	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}
	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SaveWeights は重みを JSON ファイルに書き出す
func SaveWeights(path string, mw *ModelWeights) error {
	if err := mw.Validate(); err != nil {
		return err
	}
	data, err := mw.ToJSON()
	if err != nil {
		return errors.Wrap(err, "encode model weights")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// LoadWeights は JSON ファイルから重みを読み込む
func LoadWeights(path string) (*ModelWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	mw := &ModelWeights{}
	if err := mw.FromJSON(data); err != nil {
		return nil, err
	}
	if err := mw.Validate(); err != nil {
		return nil, err
	}
	return mw, nil
}
