package scopelog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Frame is one redraw of the trailing window.
type Frame struct {
	RunID   string
	Seq     int // 0 for the first frame of a run
	Window  TrailingWindow
	Dropped int // malformed trailing rows left out of this frame
	YMin    float64
	YMax    float64
	Time    time.Time
}

// Renderer draws frames: one line per channel over the window's row indices,
// with a legend. Render is called from the visualization loop only.
type Renderer interface {
	Render(Frame) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(Frame) error

// Render calls f(frame).
func (f RendererFunc) Render(frame Frame) error {
	return f(frame)
}

// Default fixed y-axis range of a frame, in volts.
const (
	DefaultYMin = -5.0
	DefaultYMax = 5.0
)

// Visualizer runs the visualization loop of one run: on a fixed timer it
// re-reads the whole sink, cuts out the trailing window, and renders it.
type Visualizer struct {
	SinkPath   string
	WindowRows int
	Interval   time.Duration
	YMin, YMax float64
	RunID      string

	status   *RunStatus
	renderer Renderer
	updates  StatusPublisher
	readSink func(string) (*SinkSnapshot, error)
	logger   *zap.Logger

	reads  int
	frames int
}

// NewVisualizer prepares a visualization loop for the run described by config.
func NewVisualizer(config RunConfig, status *RunStatus, renderer Renderer) *Visualizer {
	config = config.WithDefaults()
	return &Visualizer{
		SinkPath:   config.SinkPath,
		WindowRows: config.WindowRows,
		Interval:   config.RedrawInterval,
		YMin:       DefaultYMin,
		YMax:       DefaultYMax,
		status:     status,
		renderer:   renderer,
		updates:    nopPublisher{},
		readSink:   ReadSink,
		logger:     ProblemLogger.With(zap.String("sink", config.SinkPath)),
	}
}

// SetStatusPublisher sends a FRAME update to p after every redraw.
func (v *Visualizer) SetStatusPublisher(p StatusPublisher) {
	v.updates = p
}

// Run waits for the readiness gate, then redraws every Interval until the
// run is Finished or ctx is done. A run that finishes without opening the
// gate is not drawn at all.
func (v *Visualizer) Run(ctx context.Context) error {
	if err := v.status.WaitReady(ctx); err != nil {
		if errors.Is(err, ErrNeverReady) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			v.logger.Info("[visualize] nothing to draw", zap.Error(err))
			return nil
		}
		return err
	}

	ticker := time.NewTicker(v.Interval)
	defer ticker.Stop()
	if !v.Tick() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !v.Tick() {
				return nil
			}
		}
	}
}

// Tick performs one redraw. It returns false, without reading the sink, once
// the run is Finished; the caller should then stop its timer. Failures to read
// or render are logged and the loop carries on.
func (v *Visualizer) Tick() bool {
	if v.status.IsFinished() {
		return false
	}
	v.reads++
	snap, err := v.readSink(v.SinkPath)
	if err != nil {
		if errors.Is(err, ErrSinkUnavailable) {
			v.logger.Debug("[visualize] sink not readable yet", zap.Error(err))
		} else {
			v.logger.Warn("[visualize] could not read sink", zap.Error(err))
		}
		return true
	}

	frame := Frame{
		RunID:   v.RunID,
		Seq:     v.frames,
		Window:  NewTrailingWindow(snap, v.WindowRows),
		Dropped: snap.Dropped,
		YMin:    v.YMin,
		YMax:    v.YMax,
		Time:    time.Now(),
	}
	if err := v.renderer.Render(frame); err != nil {
		v.logger.Warn("[visualize] could not render frame", zap.Int("seq", frame.Seq), zap.Error(err))
		return true
	}
	v.frames++
	v.updates.Publish(ClientUpdate{Tag: "FRAME", State: FrameMessage{
		RunID:     v.RunID,
		Seq:       frame.Seq,
		Start:     frame.Window.Start,
		End:       frame.Window.End,
		Dropped:   frame.Dropped,
		Summaries: frame.Window.Summaries(),
	}})
	return true
}

// Reads returns the number of times the sink has been read.
func (v *Visualizer) Reads() int {
	return v.reads
}

// Frames returns the number of frames rendered.
func (v *Visualizer) Frames() int {
	return v.frames
}
