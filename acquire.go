package scopelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Acquirer runs the acquisition loop of one run: it owns the hardware
// session, pulls one batch per read, and appends each batch to the sink until
// the configured duration has elapsed.
type Acquirer struct {
	config  RunConfig
	opener  SessionOpener
	status  *RunStatus
	runID   string
	updates StatusPublisher
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	logger  *zap.Logger

	batches     int
	rowsWritten int
	retries     int
}

// AcquireOption adjusts an Acquirer.
type AcquireOption func(*Acquirer)

// WithClock replaces time.Now as the loop's clock.
func WithClock(now func() time.Time) AcquireOption {
	return func(a *Acquirer) { a.now = now }
}

// WithSleeper replaces the context-aware sleep used between read retries.
func WithSleeper(sleep func(context.Context, time.Duration) error) AcquireOption {
	return func(a *Acquirer) { a.sleep = sleep }
}

// WithStatusPublisher sends RUNSTATE and BATCH updates to p.
func WithStatusPublisher(p StatusPublisher) AcquireOption {
	return func(a *Acquirer) { a.updates = p }
}

// WithRunID labels logs and updates with id.
func WithRunID(id string) AcquireOption {
	return func(a *Acquirer) { a.runID = id }
}

// NewAcquirer prepares an acquisition loop. The config is assumed valid.
func NewAcquirer(config RunConfig, opener SessionOpener, status *RunStatus, opts ...AcquireOption) *Acquirer {
	a := &Acquirer{
		config:  config.WithDefaults(),
		opener:  opener,
		status:  status,
		updates: nopPublisher{},
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = ProblemLogger.With(zap.String("runID", a.runID), zap.String("sink", a.config.SinkPath))
	return a
}

// Run executes the loop. The session is stopped and closed and the run is
// marked Finished on every return path. The readiness gate opens once the
// header and the first batch are on disk; a run that appends nothing never
// opens it. Cancelling ctx ends the run early without error.
func (a *Acquirer) Run(ctx context.Context) (err error) {
	if err := a.status.MarkRunning(); err != nil {
		return err
	}
	defer a.status.MarkFinished()
	defer func() { a.publishState(Finished, err) }()
	a.publishState(Running, nil)

	session, err := a.opener(a.config.Channels)
	if err != nil {
		return fmt.Errorf("opening session on %v: %w", a.config.Channels, err)
	}
	started := false
	defer func() {
		if started {
			if stopErr := session.Stop(); stopErr != nil {
				a.logger.Warn("[acquire] could not stop session", zap.Error(stopErr))
			}
		}
		if closeErr := session.Close(); closeErr != nil {
			a.logger.Warn("[acquire] could not close session", zap.Error(closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}()

	if err := session.Configure(a.config.SampleRate, a.config.BatchLength); err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}

	sink, err := CreateCSVSink(a.config.SinkPath, a.config.Channels)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: closing %s: %w", ErrSinkUnavailable, sink.Path(), closeErr)
		}
	}()
	if a.config.MirrorNPY {
		if err := sink.EnableMirror(a.config.SinkPath + ".npy"); err != nil {
			return err
		}
	}

	if err := session.Start(); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	started = true

	duration := a.config.RunDuration()
	nchan := a.config.Channels.Len()
	start := a.now()
	for a.now().Sub(start) < duration {
		raw, err := a.readBatch(ctx, session)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("[acquire] stopped before the duration elapsed",
					zap.Int("batches", a.batches), zap.Duration("elapsed", a.now().Sub(start)))
				return nil
			}
			return fmt.Errorf("reading batch %d: %w", a.batches, err)
		}
		batch, err := NewSampleBatch(raw, nchan)
		if err != nil {
			return fmt.Errorf("batch %d: %w", a.batches, err)
		}
		if err := sink.AppendBatch(batch); err != nil {
			return fmt.Errorf("appending batch %d: %w", a.batches, err)
		}
		a.batches++
		a.rowsWritten = sink.RowsWritten()
		if a.batches == 1 {
			a.status.MarkReady()
		}
		a.updates.Publish(ClientUpdate{Tag: "BATCH", State: BatchMessage{
			RunID:          a.runID,
			Batches:        a.batches,
			RowsWritten:    a.rowsWritten,
			ElapsedSeconds: a.now().Sub(start).Seconds(),
		}})
	}
	return nil
}

// readBatch performs one blocking read, bounded by ReadTimeout, applying the
// configured TimeoutPolicy when the read times out.
func (a *Acquirer) readBatch(ctx context.Context, session HardwareSession) (RawBlock, error) {
	backoff := a.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		raw, err := a.readOnce(ctx, session)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, ErrHardwareTimeout) || a.config.TimeoutPolicy != RetryOnTimeout ||
			attempt >= a.config.TimeoutRetries {
			return RawBlock{}, err
		}
		a.retries++
		a.logger.Warn("[acquire] read timed out, retrying",
			zap.Int("batch", a.batches), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))
		if err := a.sleep(ctx, backoff); err != nil {
			return RawBlock{}, err
		}
		backoff *= 2
	}
}

func (a *Acquirer) readOnce(ctx context.Context, session HardwareSession) (RawBlock, error) {
	if a.config.ReadTimeout <= 0 {
		return session.Read(ctx, a.config.BatchLength)
	}
	rctx, cancel := context.WithTimeout(ctx, a.config.ReadTimeout)
	defer cancel()
	raw, err := session.Read(rctx, a.config.BatchLength)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: no batch within %v", ErrHardwareTimeout, a.config.ReadTimeout)
	}
	return raw, err
}

func (a *Acquirer) publishState(state RunState, err error) {
	msg := RunStateMessage{
		RunID:       a.runID,
		State:       state.String(),
		Channels:    a.config.Channels.Names(),
		SampleRate:  a.config.SampleRate,
		BatchLength: a.config.BatchLength,
		SinkPath:    a.config.SinkPath,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	a.updates.Publish(ClientUpdate{Tag: "RUNSTATE", State: msg})
}

// BatchesRead returns the number of batches appended to the sink.
func (a *Acquirer) BatchesRead() int {
	return a.batches
}

// RowsWritten returns the number of data rows appended to the sink.
func (a *Acquirer) RowsWritten() int {
	return a.rowsWritten
}

// Retries returns the number of reads retried after a timeout.
func (a *Acquirer) Retries() int {
	return a.retries
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
