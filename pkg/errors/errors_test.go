package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Sequential.Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "synthreg: Sequential.Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Sequential.Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "synthreg: Sequential.Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Dense.Forward", 1, 3, 1)

	want := "synthreg: Dense.Forward: dimension mismatch on axis 1 (features). Expected 1, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("Sequential", "Predict")

	want := "synthreg: Sequential: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("batch_size", "must be positive", 0)

	assert.Equal(t, "synthreg: validation failed for parameter 'batch_size': must be positive (got: 0)", err.Error())

	var valErr *ValidationError
	require.True(t, As(err, &valErr))
	assert.Equal(t, "batch_size", valErr.ParamName)
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewConvergenceWarning("Adam", 3000, "val_loss still decreasing"))

	require.Len(t, got, 1)
	assert.Equal(t, "Adam failed to converge after 3000 iterations: val_loss still decreasing", got[0].Error())
}

func TestWarnFallsBackToHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(func(error) {})

	w := NewMissingMetricWarning("EarlyStopping", "val_loss", []string{"loss"})
	Warn(w)

	require.NotNil(t, got)
	assert.Contains(t, got.Error(), "'val_loss'")
}

func TestCheckNumericalStability(t *testing.T) {
	assert.NoError(t, CheckScalar("loss", 1.5, 0))
	assert.NoError(t, CheckNumericalStability("weights", []float64{1, 2, 3}, 0))

	err := CheckScalar("loss", math.NaN(), 7)
	require.Error(t, err)
	var numErr *NumericalInstabilityError
	require.True(t, As(err, &numErr))
	assert.Equal(t, 7, numErr.Iteration)

	assert.Error(t, CheckNumericalStability("weights", []float64{1, math.Inf(1)}, 2))
}

func TestClipGradient(t *testing.T) {
	g := []float64{3, 4}

	clipped := ClipGradient(g, 1)
	assert.InDelta(t, 0.6, clipped[0], 1e-12)
	assert.InDelta(t, 0.8, clipped[1], 1e-12)

	assert.Equal(t, g, ClipGradient(g, 10))
	assert.Equal(t, g, ClipGradient(g, 0))
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s", "TrainTestSplit")

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in TrainTestSplit") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}
