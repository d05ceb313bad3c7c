package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/synthreg/synthreg/pkg/errors"
)

// TrainTestSplit partitions d into train and test subsets.
//
// A testSize in (0, 1) is a fraction of the samples, rounded up; a value >= 1
// is an absolute count. With shuffle the indices are permuted with a source
// seeded by seed and the test set takes the first nTest of them. Without
// shuffle the test set is the tail of d.
func TrainTestSplit(d *Dataset, testSize float64, seed uint64, shuffle bool) (train, test *Dataset, err error) {
	n := d.Len()
	if n == 0 {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, "TrainTestSplit")
	}

	nTest, err := testCount(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	nTrain := n - nTest
	if nTrain < 1 {
		return nil, nil, errors.NewValidationError("test_size",
			"leaves no samples for training", testSize)
	}

	idx := make([]int, n)
	if shuffle {
		idx = rand.New(rand.NewPCG(seed, seed)).Perm(n)
		return d.Subset(idx[nTest:]), d.Subset(idx[:nTest]), nil
	}
	for i := range idx {
		idx[i] = i
	}
	return d.Subset(idx[:nTrain]), d.Subset(idx[nTrain:]), nil
}

func testCount(n int, testSize float64) (int, error) {
	switch {
	case math.IsNaN(testSize) || testSize <= 0:
		return 0, errors.NewValidationError("test_size", "must be positive", testSize)
	case testSize < 1:
		return int(math.Ceil(testSize * float64(n))), nil
	case testSize != math.Trunc(testSize):
		return 0, errors.NewValidationError("test_size", "absolute counts must be integers", testSize)
	case int(testSize) >= n:
		return 0, errors.NewValidationError("test_size", "must be smaller than the number of samples", testSize)
	default:
		return int(testSize), nil
	}
}
