package dataset

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthreg/synthreg/pkg/errors"
)

func TestGenerateDefaults(t *testing.T) {
	ds, err := Generate(DefaultGenerateConfig())
	require.NoError(t, err)

	require.Equal(t, 100, ds.Len())
	require.Len(t, ds.Y, 100)
	for i, x := range ds.X {
		assert.Equal(t, float64(i), x)
	}

	// 残差 y - (3x + 1) はノイズそのもの
	resid := make([]float64, ds.Len())
	for i := range ds.X {
		resid[i] = ds.Y[i] - (3*ds.X[i] + 1)
	}
	var mean, sq float64
	for _, r := range resid {
		mean += r
	}
	mean /= float64(len(resid))
	for _, r := range resid {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(resid)-1))

	assert.InDelta(t, 0, mean, 2.0)
	assert.InDelta(t, 5, std, 1.5)
}

func TestGenerateIsReproducible(t *testing.T) {
	a, err := Generate(DefaultGenerateConfig())
	require.NoError(t, err)
	b, err := Generate(DefaultGenerateConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg := DefaultGenerateConfig()
	cfg.Seed = 1
	c, err := Generate(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Y, c.Y)
}

func TestGenerateWithoutNoiseIsExact(t *testing.T) {
	cfg := DefaultGenerateConfig()
	cfg.NoiseStd = 0
	ds, err := Generate(cfg)
	require.NoError(t, err)
	for i, x := range ds.X {
		assert.InDelta(t, 3*x+1, ds.Y[i], 1e-12)
	}
}

func TestGenerateFractionalStep(t *testing.T) {
	cfg := GenerateConfig{Start: 0, Stop: 1, Step: 0.3, Slope: 1}
	ds, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Len())
	assert.InDelta(t, 0.9, ds.X[3], 1e-12)
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GenerateConfig)
		param  string
	}{
		{"zero step", func(c *GenerateConfig) { c.Step = 0 }, "step"},
		{"empty range", func(c *GenerateConfig) { c.Stop = c.Start }, "stop"},
		{"negative noise", func(c *GenerateConfig) { c.NoiseStd = -1 }, "noise_std"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGenerateConfig()
			tt.mutate(&cfg)
			_, err := Generate(cfg)
			var vErr *errors.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.param, vErr.ParamName)
		})
	}
}

func TestNewRejectsLengthMismatch(t *testing.T) {
	_, err := New([]float64{1, 2}, []float64{1})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestMatricesAndSubset(t *testing.T) {
	ds, err := New([]float64{0, 1, 2}, []float64{10, 11, 12})
	require.NoError(t, err)

	X, y := ds.Matrices()
	r, c := X.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 1, c)
	assert.Equal(t, 12.0, y.At(2, 0))

	sub := ds.Subset([]int{2, 0})
	assert.Equal(t, []float64{2, 0}, sub.X)
	assert.Equal(t, []float64{12, 10}, sub.Y)

	// Matrices はコピーを返す
	X.Set(0, 0, 99)
	assert.Equal(t, 0.0, ds.X[0])
}

func TestDescribe(t *testing.T) {
	cfg := DefaultGenerateConfig()
	cfg.NoiseStd = 0
	ds, err := Generate(cfg)
	require.NoError(t, err)

	s, err := Describe(ds)
	require.NoError(t, err)
	assert.Equal(t, 100, s.N)
	assert.InDelta(t, 49.5, s.MeanX, 1e-12)
	assert.InDelta(t, 3*49.5+1, s.MeanY, 1e-9)
	assert.InDelta(t, 1.0, s.Correlation, 1e-12)

	_, err = Describe(&Dataset{})
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestTrainTestSplitShuffled(t *testing.T) {
	ds, err := Generate(DefaultGenerateConfig())
	require.NoError(t, err)

	train, test, err := TrainTestSplit(ds, 0.2, 42, true)
	require.NoError(t, err)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, test.Len())

	// 分割は互いに素で全体を覆う
	seen := map[float64]int{}
	for _, x := range train.X {
		seen[x]++
	}
	for _, x := range test.X {
		seen[x]++
	}
	require.Len(t, seen, 100)
	for x, c := range seen {
		assert.Equal(t, 1, c, "x=%v", x)
	}

	// x と y の対応が保たれる
	for i, x := range test.X {
		assert.Equal(t, ds.Y[int(x)], test.Y[i])
	}

	// シャッフルされている
	assert.False(t, sort.Float64sAreSorted(train.X))
}

func TestTrainTestSplitReproducible(t *testing.T) {
	ds, err := Generate(DefaultGenerateConfig())
	require.NoError(t, err)

	tr1, te1, err := TrainTestSplit(ds, 0.2, 42, true)
	require.NoError(t, err)
	tr2, te2, err := TrainTestSplit(ds, 0.2, 42, true)
	require.NoError(t, err)
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, te1, te2)

	_, te3, err := TrainTestSplit(ds, 0.2, 7, true)
	require.NoError(t, err)
	assert.NotEqual(t, te1.X, te3.X)
}

func TestTrainTestSplitSizes(t *testing.T) {
	ds, err := New(make([]float64, 10), make([]float64, 10))
	require.NoError(t, err)

	tests := []struct {
		name      string
		testSize  float64
		wantTrain int
		wantTest  int
		wantErr   bool
	}{
		{"fraction rounds up", 0.25, 7, 3, false},
		{"absolute count", 4, 6, 4, false},
		{"zero", 0, 0, 0, true},
		{"everything", 10, 0, 0, true},
		{"non-integer count", 2.5, 0, 0, true},
		{"fraction leaving nothing", 0.99, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test, err := TrainTestSplit(ds, tt.testSize, 0, true)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrain, train.Len())
			assert.Equal(t, tt.wantTest, test.Len())
		})
	}
}

func TestTrainTestSplitWithoutShuffleKeepsOrder(t *testing.T) {
	ds, err := New([]float64{0, 1, 2, 3, 4}, []float64{0, 1, 2, 3, 4})
	require.NoError(t, err)

	train, test, err := TrainTestSplit(ds, 0.4, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, train.X)
	assert.Equal(t, []float64{3, 4}, test.X)
}

func TestTrainTestSplitEmpty(t *testing.T) {
	_, _, err := TrainTestSplit(&Dataset{}, 0.2, 0, true)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}
