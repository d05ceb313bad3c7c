package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/synthreg/synthreg/pkg/errors"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestVectorMetrics(t *testing.T) {
	type metricFunc func(yTrue, yPred *mat.VecDense) (float64, error)

	tests := []struct {
		name    string
		fn      metricFunc
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{"MSE perfect", MSE, vec(1, 2, 3, 4, 5), vec(1, 2, 3, 4, 5), 0, false},
		{"MSE half offsets", MSE, vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5), 0.25, false},
		// (4 + 4 + 9) / 3
		{"MSE larger errors", MSE, vec(10, 20, 30), vec(12, 18, 33), 17.0 / 3.0, false},
		{"MSE dimension mismatch", MSE, vec(1, 2, 3), vec(1, 2), 0, true},
		{"MSE empty", MSE, &mat.VecDense{}, &mat.VecDense{}, 0, true},

		{"RMSE unit offset", RMSE, vec(0, 0, 0, 0), vec(1, 1, 1, 1), 1, false},
		{"RMSE dimension mismatch", RMSE, vec(1, 2, 3), vec(1, 2), 0, true},

		{"MAE half offsets", MAE, vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5), 0.5, false},
		{"MAE swapped", MAE, vec(1, 2, 3, 4), vec(2, 1, 4, 3), 1, false},
		{"MAE dimension mismatch", MAE, vec(1, 2, 3), vec(1, 2), 0, true},

		{"R2 perfect", R2Score, vec(1, 2, 3, 4, 5), vec(1, 2, 3, 4, 5), 1, false},
		// 平均予測より悪い: 1 - 20/5
		{"R2 worse than mean", R2Score, vec(1, 2, 3, 4), vec(4, 3, 2, 1), -3, false},
		{"R2 no variance", R2Score, vec(3, 3, 3), vec(2, 3, 4), 0, true},

		// 10% と 20% の平均。0 は除外
		{"MAPE skips zeros", MAPE, vec(10, 0, 5), vec(11, 7, 4), 15, false},
		{"MAPE all zero", MAPE, vec(0, 0), vec(1, 1), 0, true},

		// 一定のずれは分散を変えない
		{"ExplainedVariance constant bias", ExplainedVarianceScore, vec(1, 2, 3, 4), vec(2, 3, 4, 5), 1, false},
		{"ExplainedVariance single sample", ExplainedVarianceScore, vec(1), vec(1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.yTrue, tt.yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestMSEMatrix(t *testing.T) {
	got, err := MSEMatrix(
		mat.NewDense(4, 1, []float64{1, 2, 3, 4}),
		mat.NewDense(4, 1, []float64{1.5, 2.5, 2.5, 3.5}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-10)

	_, err = MSEMatrix(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	var valueErr *errors.ValueError
	assert.True(t, errors.As(err, &valueErr))

	_, err = MSEMatrix(mat.NewDense(3, 1, nil), mat.NewDense(2, 1, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestEvaluate(t *testing.T) {
	yTrue := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	yPred := mat.NewDense(4, 1, []float64{1.5, 2.5, 2.5, 3.5})

	r, err := Evaluate(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, r.MSE, 1e-12)
	assert.InDelta(t, 0.5, r.RMSE, 1e-12)
	assert.InDelta(t, 0.5, r.MAE, 1e-12)
	assert.InDelta(t, 0.8, r.R2, 1e-12)

	flat, err := Evaluate(mat.NewDense(2, 1, []float64{3, 3}), mat.NewDense(2, 1, []float64{2, 4}))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(flat.R2))
	assert.InDelta(t, 1, flat.MSE, 1e-12)
}

func BenchmarkMSE(b *testing.B) {
	size := 10000
	yTrue := mat.NewVecDense(size, nil)
	yPred := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		yTrue.SetVec(i, float64(i))
		yPred.SetVec(i, float64(i)+0.1*float64(i%10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MSE(yTrue, yPred)
	}
}
