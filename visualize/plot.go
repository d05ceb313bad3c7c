// Package visualize renders the data set, the train/test split, the fitted
// model and the loss curve with gonum/plot.
package visualize

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/synthreg/synthreg/dataset"
	"github.com/synthreg/synthreg/nn"
	"github.com/synthreg/synthreg/pkg/errors"
)

// Figure size, 10×7 inches.
const (
	Width  = 10 * vg.Inch
	Height = 7 * vg.Inch
)

var (
	blue = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	red  = color.RGBA{R: 0xff, A: 0xff}
)

const (
	labelX    = "x"
	labelY    = "f_w(x)"
	labelYHat = "f̂_w(x)"
)

// Title formats the generating function, e.g.
// "f_w(x) = 3 x + 1 + ε, where ε ~ N(μ=0, σ=5)".
func Title(slope, intercept, noiseMean, noiseStd float64) string {
	return fmt.Sprintf("f_w(x) = %g x + %g + ε, where ε ~ N(μ=%g, σ=%g)", slope, intercept, noiseMean, noiseStd)
}

func newPlot(title, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = labelX
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())
	return p
}

func xys(d *dataset.Dataset) plotter.XYs {
	pts := make(plotter.XYs, d.Len())
	for i := range pts {
		pts[i].X = d.X[i]
		pts[i].Y = d.Y[i]
	}
	return pts
}

func addScatter(p *plot.Plot, d *dataset.Dataset, label string, c color.Color) error {
	if d.Len() == 0 {
		return errors.NewValueError("visualize", label+" is empty")
	}
	s, err := plotter.NewScatter(xys(d))
	if err != nil {
		return errors.Wrap(err, "scatter "+label)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(3)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}

// DatasetPlot scatters the whole synthetic data set.
func DatasetPlot(d *dataset.Dataset, title string) (*plot.Plot, error) {
	p := newPlot(title, labelY)
	if err := addScatter(p, d, "Synthetic dataset", blue); err != nil {
		return nil, err
	}
	return p, nil
}

// SplitPlot scatters the test partition in blue and the training partition in red.
func SplitPlot(train, test *dataset.Dataset, title string) (*plot.Plot, error) {
	p := newPlot(title, labelY)
	if err := addScatter(p, test, "Testing dataset", blue); err != nil {
		return nil, err
	}
	if err := addScatter(p, train, "Training dataset", red); err != nil {
		return nil, err
	}
	return p, nil
}

// FitPlot scatters the training data and draws the model's predictions at
// the test inputs as a line. pred[i] is the prediction for test.X[i].
func FitPlot(train, test *dataset.Dataset, pred []float64, title string) (*plot.Plot, error) {
	if len(pred) != test.Len() {
		return nil, errors.NewDimensionError("visualize.FitPlot", test.Len(), len(pred), 0)
	}
	if len(pred) == 0 {
		return nil, errors.NewValueError("visualize.FitPlot", "no predictions")
	}

	p := newPlot(title, labelYHat)
	if err := addScatter(p, train, "Training data", blue); err != nil {
		return nil, err
	}

	// x 昇順に並べてから線を引く
	line := make(plotter.XYs, len(pred))
	for i := range line {
		line[i].X = test.X[i]
		line[i].Y = pred[i]
	}
	sort.Slice(line, func(i, j int) bool { return line[i].X < line[j].X })

	l, err := plotter.NewLine(line)
	if err != nil {
		return nil, errors.Wrap(err, "model line")
	}
	l.LineStyle.Width = vg.Points(3)
	l.LineStyle.Color = red
	p.Add(l)
	p.Legend.Add("Model", l)
	return p, nil
}

// LossPlot draws the training loss and, when recorded, the validation loss
// per epoch. A logarithmic y axis is used when every value is positive.
func LossPlot(h *nn.History, title string) (*plot.Plot, error) {
	if h == nil || h.Len() == 0 {
		return nil, errors.NewValueError("visualize.LossPlot", "history is empty")
	}

	p := newPlot(title, "loss")
	p.X.Label.Text = "epoch"

	series := []struct {
		label  string
		values []float64
		c      color.Color
	}{
		{"loss", h.Loss, blue},
		{"val_loss", h.ValLoss, red},
	}

	logScale := true
	for _, s := range series {
		if len(s.values) > 0 && floats.Min(s.values) <= 0 {
			logScale = false
		}
	}
	if logScale {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	for _, s := range series {
		if len(s.values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.values))
		for i, v := range s.values {
			pts[i].X = float64(h.Epochs[i] + 1)
			pts[i].Y = v
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrap(err, s.label)
		}
		l.LineStyle.Width = vg.Points(2)
		l.LineStyle.Color = s.c
		p.Add(l)
		p.Legend.Add(s.label, l)
	}
	return p, nil
}

// Save writes p to path at 10×7 inches. The format follows the file
// extension: .png, .svg, .pdf, .jpg, .eps or .tif.
func Save(p *plot.Plot, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg", ".eps", ".tif", ".tiff":
	default:
		return errors.NewValidationError("path", "unsupported image format", path)
	}
	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "save plot to %s", path)
	}
	return nil
}
