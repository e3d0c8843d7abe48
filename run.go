package scopelog

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunSummary reports what one run did.
type RunSummary struct {
	RunID       string
	Batches     int
	RowsWritten int
	Retries     int
	Frames      int
	SinkReads   int
	Start       time.Time
	End         time.Time
}

// NewRunID returns a new, time-ordered run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// Pipeline wires one run's acquisition and visualization loops together.
type Pipeline struct {
	Config   RunConfig
	Opener   SessionOpener
	Renderer Renderer
	Updates  StatusPublisher // may be nil
	RunID    string
	Options  []AcquireOption // extra options for the Acquirer
}

// Run acquires and visualizes concurrently until the acquisition loop
// finishes, then waits for the visualization loop to notice. The returned
// error is the acquisition loop's; render and read problems in the
// visualization loop are only logged.
func (pl *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	if pl.RunID == "" {
		pl.RunID = NewRunID()
	}
	updates := pl.Updates
	if updates == nil {
		updates = nopPublisher{}
	}
	status := NewRunStatus()
	opts := append([]AcquireOption{WithRunID(pl.RunID), WithStatusPublisher(updates)}, pl.Options...)
	acq := NewAcquirer(pl.Config, pl.Opener, status, opts...)
	vis := NewVisualizer(pl.Config, status, pl.Renderer)
	vis.RunID = pl.RunID
	vis.SetStatusPublisher(updates)

	summary := &RunSummary{RunID: pl.RunID, Start: time.Now()}
	UpdateLogger.Info("[run] starting",
		zap.String("runID", pl.RunID),
		zap.Strings("channels", pl.Config.Channels.Names()),
		zap.Int("sampleRate", pl.Config.SampleRate),
		zap.Int("batchLength", pl.Config.BatchLength),
		zap.Float64("durationSeconds", pl.Config.DurationSeconds()),
		zap.String("sink", pl.Config.SinkPath))

	// Plain Group, not WithContext: the visualizer stops on Finished, not on
	// the acquirer's error.
	var g errgroup.Group
	var err error
	g.Go(func() error {
		err = acq.Run(ctx)
		return nil
	})
	g.Go(func() error { return vis.Run(ctx) })
	if visErr := g.Wait(); visErr != nil {
		ProblemLogger.Warn("[run] visualization stopped", zap.String("runID", pl.RunID), zap.Error(visErr))
	}

	summary.End = time.Now()
	summary.Batches = acq.BatchesRead()
	summary.RowsWritten = acq.RowsWritten()
	summary.Retries = acq.Retries()
	summary.Frames = vis.Frames()
	summary.SinkReads = vis.Reads()
	if err != nil {
		ProblemLogger.Error("[run] acquisition failed", zap.String("runID", pl.RunID), zap.Error(err))
	}
	UpdateLogger.Info("[run] finished",
		zap.String("runID", pl.RunID),
		zap.Int("batches", summary.Batches),
		zap.Int("rows", summary.RowsWritten),
		zap.Int("frames", summary.Frames),
		zap.Duration("elapsed", summary.End.Sub(summary.Start)))
	return summary, err
}
