package scopelog

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotRenderer draws each frame as a line chart and saves it to Filename,
// replacing the previous frame atomically. The image format follows the file
// extension (.png, .svg, .pdf, ...).
type PlotRenderer struct {
	Filename string
	Width    vg.Length
	Height   vg.Length
	Title    string
}

// NewPlotRenderer returns a PlotRenderer writing 10x5 inch images to filename.
func NewPlotRenderer(filename string) *PlotRenderer {
	return &PlotRenderer{
		Filename: filename,
		Width:    10 * vg.Inch,
		Height:   5 * vg.Inch,
		Title:    "Live acquisition",
	}
}

// Render draws frame and replaces Filename with the result.
func (pr *PlotRenderer) Render(frame Frame) error {
	p, err := pr.plotFrame(frame)
	if err != nil {
		return err
	}
	// Save picks the format from the extension, so keep it on the temporary name.
	dir, base := filepath.Split(pr.Filename)
	tmpname := filepath.Join(dir, ".tmp-"+base)
	if err := p.Save(pr.Width, pr.Height, tmpname); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return os.Rename(tmpname, pr.Filename)
}

func (pr *PlotRenderer) plotFrame(frame Frame) (*plot.Plot, error) {
	w := frame.Window
	p := plot.New()
	p.Title.Text = pr.Title
	if frame.RunID != "" {
		p.Title.Text = fmt.Sprintf("%s (run %s)", pr.Title, frame.RunID)
	}
	p.X.Label.Text = "Sample index"
	p.Y.Label.Text = "Voltage (V)"
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	x := w.X()
	for c, name := range w.Channels {
		var legend *plotter.Line
		for _, pts := range finiteRuns(x, w.Columns[c]) {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, fmt.Errorf("channel %s: %w", name, err)
			}
			line.Color = plotutil.Color(c)
			line.Width = vg.Points(1)
			p.Add(line)
			if legend == nil {
				legend = line
			}
		}
		if legend != nil {
			p.Legend.Add(name, legend)
		}
	}

	p.X.Min, p.X.Max = float64(w.Start), float64(w.End-1)
	if w.Len() < 2 {
		p.X.Max = float64(w.Start + 1)
	}
	if frame.YMax > frame.YMin {
		p.Y.Min, p.Y.Max = frame.YMin, frame.YMax
	}
	return p, nil
}

// finiteRuns splits (x, y) into the maximal runs of finite y values, so that
// a NaN or Inf reading leaves a gap in the line instead of failing the frame.
func finiteRuns(x, y []float64) []plotter.XYs {
	var runs []plotter.XYs
	var cur plotter.XYs
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: x[i], Y: v})
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

// NPYSnapshotRenderer saves each frame's window as a rows-by-channels
// float64 array in numpy format, replacing the previous one.
type NPYSnapshotRenderer struct {
	Filename string
}

// Render writes the window of frame to Filename. Empty windows are skipped.
func (nr NPYSnapshotRenderer) Render(frame Frame) error {
	m := frame.Window.Matrix()
	if m == nil {
		return nil
	}
	dir, base := filepath.Split(nr.Filename)
	tmp, err := os.CreateTemp(dir, ".tmp-"+base)
	if err != nil {
		return err
	}
	if err := npyio.Write(tmp, m); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing npy snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), nr.Filename)
}

// MultiRenderer hands every frame to each of its renderers in turn.
type MultiRenderer []Renderer

// Render calls every renderer, even after a failure, and joins the errors.
func (mr MultiRenderer) Render(frame Frame) error {
	var errs []error
	for _, r := range mr {
		if err := r.Render(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
