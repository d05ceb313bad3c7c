package nn

import (
	"math"
	"sort"

	"github.com/synthreg/synthreg/pkg/errors"
	"github.com/synthreg/synthreg/pkg/log"
)

// Logs holds the metrics reported at the end of an epoch, e.g. "loss" and "val_loss".
type Logs map[string]float64

// Keys returns the metric names in sorted order.
func (l Logs) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Callback is notified after every epoch. Returning true stops training.
type Callback interface {
	OnEpochEnd(epoch int, logs Logs) (stop bool)
}

// TrainBeginner is implemented by callbacks that reset state when Fit starts.
type TrainBeginner interface {
	OnTrainBegin()
}

// TrainEnder is implemented by callbacks that act when Fit finishes.
type TrainEnder interface {
	OnTrainEnd()
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(epoch int, logs Logs) bool

// OnEpochEnd implements Callback.
func (f CallbackFunc) OnEpochEnd(epoch int, logs Logs) bool { return f(epoch, logs) }

// EarlyStopping stops training once the monitored metric has not improved
// for Patience consecutive epochs. Lower is better.
type EarlyStopping struct {
	Monitor  string
	Patience int
	// MinDelta is the minimum decrease that counts as an improvement.
	MinDelta float64
	Verbose  bool
	Logger   log.Logger

	wait         int
	best         float64
	bestEpoch    int
	stoppedEpoch int
	warned       bool
}

// NewEarlyStopping monitors monitor ("val_loss" when empty) with the given patience.
func NewEarlyStopping(monitor string, patience int, verbose bool) *EarlyStopping {
	if monitor == "" {
		monitor = "val_loss"
	}
	es := &EarlyStopping{Monitor: monitor, Patience: patience, Verbose: verbose}
	es.OnTrainBegin()
	return es
}

// OnTrainBegin implements TrainBeginner.
func (es *EarlyStopping) OnTrainBegin() {
	es.wait = 0
	es.best = math.Inf(1)
	es.bestEpoch = 0
	es.stoppedEpoch = 0
	es.warned = false
}

// OnEpochEnd implements Callback.
func (es *EarlyStopping) OnEpochEnd(epoch int, logs Logs) bool {
	current, ok := logs[es.Monitor]
	if !ok {
		if !es.warned {
			errors.Warn(errors.NewMissingMetricWarning("EarlyStopping", es.Monitor, logs.Keys()))
			es.warned = true
		}
		return false
	}

	es.wait++
	if current+math.Abs(es.MinDelta) < es.best {
		es.best = current
		es.bestEpoch = epoch
		es.wait = 0
		return false
	}

	if es.wait >= es.Patience && epoch > 0 {
		es.stoppedEpoch = epoch
		return true
	}
	return false
}

// OnTrainEnd implements TrainEnder.
func (es *EarlyStopping) OnTrainEnd() {
	if es.stoppedEpoch > 0 && es.Verbose {
		es.logger().Info("Early stopping",
			log.EpochKey, es.stoppedEpoch+1,
			"best_epoch", es.bestEpoch+1,
			log.ValLossKey, es.best,
		)
	}
}

// Stopped reports whether the callback ended training.
func (es *EarlyStopping) Stopped() bool { return es.stoppedEpoch > 0 }

// StoppedEpoch is the zero-based epoch at which training stopped, 0 if it did not.
func (es *EarlyStopping) StoppedEpoch() int { return es.stoppedEpoch }

// BestEpoch is the zero-based epoch with the lowest monitored value.
func (es *EarlyStopping) BestEpoch() int { return es.bestEpoch }

// Best is the lowest monitored value seen.
func (es *EarlyStopping) Best() float64 { return es.best }

func (es *EarlyStopping) logger() log.Logger {
	if es.Logger != nil {
		return es.Logger
	}
	return log.GetLogger()
}

// History records per-epoch metrics returned by Fit.
type History struct {
	Epochs  []int
	Loss    []float64
	ValLoss []float64
}

func (h *History) record(epoch int, logs Logs) {
	h.Epochs = append(h.Epochs, epoch)
	h.Loss = append(h.Loss, logs["loss"])
	if v, ok := logs["val_loss"]; ok {
		h.ValLoss = append(h.ValLoss, v)
	}
}

// Len returns the number of completed epochs.
func (h *History) Len() int { return len(h.Epochs) }

// FinalLoss returns the last training loss, NaN when empty.
func (h *History) FinalLoss() float64 {
	if len(h.Loss) == 0 {
		return math.NaN()
	}
	return h.Loss[len(h.Loss)-1]
}

// FinalValLoss returns the last validation loss, NaN when not tracked.
func (h *History) FinalValLoss() float64 {
	if len(h.ValLoss) == 0 {
		return math.NaN()
	}
	return h.ValLoss[len(h.ValLoss)-1]
}
