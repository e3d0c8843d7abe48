package scopelog

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TrailingWindow is the view of the last N rows of a sink, [Start, End) in
// sink row indices. It is recomputed from scratch on every redraw.
type TrailingWindow struct {
	Start    int
	End      int
	Channels []string
	Columns  [][]float64 // Columns[c][i] is channel c at sink row Start+i
}

// WindowBounds returns start = max(0, total-n) and end = total. A
// non-positive n selects every row.
func WindowBounds(total, n int) (start, end int) {
	if n <= 0 || total <= n {
		return 0, total
	}
	return total - n, total
}

// NewTrailingWindow extracts the last n rows of snap, one column per channel.
func NewTrailingWindow(snap *SinkSnapshot, n int) TrailingWindow {
	start, end := WindowBounds(snap.TotalRows(), n)
	w := TrailingWindow{
		Start:    start,
		End:      end,
		Channels: append([]string(nil), snap.Header...),
		Columns:  make([][]float64, len(snap.Header)),
	}
	for c := range w.Columns {
		col := make([]float64, end-start)
		for i := range col {
			col[i] = snap.Rows[start+i][c]
		}
		w.Columns[c] = col
	}
	return w
}

// Len returns the number of rows in the window.
func (w TrailingWindow) Len() int {
	return w.End - w.Start
}

// X returns the shared x-axis of the window: the sink row indices.
func (w TrailingWindow) X() []float64 {
	x := make([]float64, w.Len())
	for i := range x {
		x[i] = float64(w.Start + i)
	}
	return x
}

// Matrix returns the window as a rows-by-channels matrix, or nil when empty.
func (w TrailingWindow) Matrix() *mat.Dense {
	if w.Len() == 0 || len(w.Columns) == 0 {
		return nil
	}
	m := mat.NewDense(w.Len(), len(w.Columns), nil)
	for c, col := range w.Columns {
		m.SetCol(c, col)
	}
	return m
}

// ChannelSummary describes one channel's finite readings within a window.
// A channel with no finite readings has Samples == 0 and zero statistics.
type ChannelSummary struct {
	Channel string
	Samples int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

// Summaries computes a ChannelSummary per channel, skipping NaN and Inf
// readings. It returns nil for an empty window.
func (w TrailingWindow) Summaries() []ChannelSummary {
	if w.Len() == 0 {
		return nil
	}
	out := make([]ChannelSummary, len(w.Columns))
	finite := make([]float64, 0, w.Len())
	for c, col := range w.Columns {
		finite = finite[:0]
		for _, v := range col {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
		out[c] = ChannelSummary{Channel: w.Channels[c], Samples: len(finite)}
		if len(finite) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(finite, nil)
		if len(finite) < 2 {
			std = 0
		}
		out[c].Mean = mean
		out[c].StdDev = std
		out[c].Min = floats.Min(finite)
		out[c].Max = floats.Max(finite)
	}
	return out
}
