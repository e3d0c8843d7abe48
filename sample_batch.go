package scopelog

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// RawBlock is the payload of one hardware read, in whichever shape the driver
// returns. A read on a single channel commonly comes back as one flat
// sequence (Flat); a read on several channels comes back channel-major, one
// slice per channel (Channels). Exactly one of the two should be set.
type RawBlock struct {
	Flat     []float64
	Channels [][]float64
}

// SampleBatch is a rectangular block of readings: one row per sample instant,
// one column per channel in ChannelSet order.
type SampleBatch struct {
	data *mat.Dense
}

// NewSampleBatch normalizes a RawBlock from a session reading nchan channels
// into a SampleBatch.
func NewSampleBatch(raw RawBlock, nchan int) (*SampleBatch, error) {
	if nchan <= 0 {
		return nil, fmt.Errorf("cannot build a batch with %d channels", nchan)
	}
	if raw.Channels != nil {
		return batchFromChannels(raw.Channels, nchan)
	}
	if nchan != 1 {
		return nil, fmt.Errorf("flat payload of %d samples given for %d channels, want channel-major data",
			len(raw.Flat), nchan)
	}
	if len(raw.Flat) == 0 {
		return nil, fmt.Errorf("hardware read returned no samples")
	}
	data := make([]float64, len(raw.Flat))
	copy(data, raw.Flat)
	return &SampleBatch{data: mat.NewDense(len(data), 1, data)}, nil
}

func batchFromChannels(channels [][]float64, nchan int) (*SampleBatch, error) {
	if len(channels) != nchan {
		return nil, fmt.Errorf("hardware read returned %d channels, want %d", len(channels), nchan)
	}
	nsamp := len(channels[0])
	if nsamp == 0 {
		return nil, fmt.Errorf("hardware read returned no samples")
	}
	for i, ch := range channels {
		if len(ch) != nsamp {
			return nil, fmt.Errorf("hardware read returned %d samples on channel %d but %d on channel 0",
				len(ch), i, nsamp)
		}
	}
	d := mat.NewDense(nsamp, nchan, nil)
	for i, ch := range channels {
		d.SetCol(i, ch)
	}
	return &SampleBatch{data: d}, nil
}

// Rows returns the number of sample instants in the batch.
func (b *SampleBatch) Rows() int {
	r, _ := b.data.Dims()
	return r
}

// Cols returns the number of channels in the batch.
func (b *SampleBatch) Cols() int {
	_, c := b.data.Dims()
	return c
}

// At returns the reading for sample instant i on channel j.
func (b *SampleBatch) At(i, j int) float64 {
	return b.data.At(i, j)
}

// Row copies sample instant i into dst (allocating if dst is nil) and returns it.
func (b *SampleBatch) Row(dst []float64, i int) []float64 {
	return mat.Row(dst, i, b.data)
}

// RawRowMajor returns the batch's backing data, row-major. Callers must not modify it.
func (b *SampleBatch) RawRowMajor() []float64 {
	return b.data.RawMatrix().Data
}

// Matrix exposes the batch as a read-only matrix.
func (b *SampleBatch) Matrix() mat.Matrix {
	return b.data
}
