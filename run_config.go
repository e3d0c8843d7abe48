package scopelog

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DurationUnit names the unit a run duration was entered in.
type DurationUnit string

// The duration units a run can be configured in.
const (
	Seconds DurationUnit = "seconds"
	Minutes DurationUnit = "minutes"
	Hours   DurationUnit = "hours"
)

// ParseDurationUnit accepts a unit name, case-insensitive, singular or plural.
func ParseDurationUnit(s string) (DurationUnit, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "", "second", "sec":
		return Seconds, nil
	case "minute", "min":
		return Minutes, nil
	case "hour", "hr":
		return Hours, nil
	}
	return "", fmt.Errorf("%w: duration unit %q, want seconds, minutes or hours", ErrInvalidConfiguration, s)
}

// InSeconds converts amount (expressed in unit u) to seconds. Unknown units
// are taken to be seconds.
func (u DurationUnit) InSeconds(amount float64) float64 {
	switch u {
	case Minutes:
		return amount * 60
	case Hours:
		return amount * 3600
	}
	return amount
}

// TimeoutPolicy says what the acquisition loop does when a hardware read
// times out.
type TimeoutPolicy int

// Available timeout policies.
const (
	AbortOnTimeout TimeoutPolicy = iota // surface the timeout and end the run
	RetryOnTimeout                      // retry the read with exponential backoff
)

func (p TimeoutPolicy) String() string {
	switch p {
	case AbortOnTimeout:
		return "abort"
	case RetryOnTimeout:
		return "retry"
	}
	return fmt.Sprintf("TimeoutPolicy(%d)", int(p))
}

// ParseTimeoutPolicy converts "abort" or "retry" to a TimeoutPolicy.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return AbortOnTimeout, nil
	case "retry":
		return RetryOnTimeout, nil
	}
	return AbortOnTimeout, fmt.Errorf("%w: timeout policy %q, want abort or retry", ErrInvalidConfiguration, s)
}

// Defaults for the optional parts of a RunConfig.
const (
	DefaultWindowRows     = 1500
	DefaultRedrawInterval = 100 * time.Millisecond
	DefaultReadTimeout    = 10 * time.Second
	DefaultRetryBackoff   = 50 * time.Millisecond
	DefaultTimeoutRetries = 3
)

// RunConfig holds everything the acquisition and visualization loops need for
// one run. It is built once by a configuration collector and passed by value.
type RunConfig struct {
	Channels     ChannelSet
	SampleRate   int     // samples per second per channel
	BatchLength  int     // samples per channel per read
	Duration     float64 // in DurationUnit
	DurationUnit DurationUnit
	SinkPath     string

	WindowRows     int           // rows in the trailing window
	RedrawInterval time.Duration // visualization tick
	ReadTimeout    time.Duration // bound on one blocking read (0: no bound)
	TimeoutPolicy  TimeoutPolicy
	TimeoutRetries int
	RetryBackoff   time.Duration
	MirrorNPY      bool // also append every batch to SinkPath+".npy"
}

// WithDefaults returns a copy of c with zero-valued optional fields filled in.
func (c RunConfig) WithDefaults() RunConfig {
	if c.DurationUnit == "" {
		c.DurationUnit = Seconds
	}
	if c.WindowRows <= 0 {
		c.WindowRows = DefaultWindowRows
	}
	if c.RedrawInterval <= 0 {
		c.RedrawInterval = DefaultRedrawInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.TimeoutPolicy == RetryOnTimeout && c.TimeoutRetries <= 0 {
		c.TimeoutRetries = DefaultTimeoutRetries
	}
	return c
}

// DurationSeconds is the run duration converted to seconds.
func (c RunConfig) DurationSeconds() float64 {
	return c.DurationUnit.InSeconds(c.Duration)
}

// RunDuration is the run duration as a time.Duration.
func (c RunConfig) RunDuration() time.Duration {
	return time.Duration(c.DurationSeconds() * float64(time.Second))
}

// BatchPeriod is the time the hardware needs to fill one batch.
func (c RunConfig) BatchPeriod() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.BatchLength) / float64(c.SampleRate) * float64(time.Second))
}

// ExpectedRows is the number of data rows a run of this configuration should
// leave in the sink, give or take one batch for boundary timing.
func (c RunConfig) ExpectedRows() int {
	if c.BatchLength <= 0 {
		return 0
	}
	nbatch := math.Floor(c.DurationSeconds() * float64(c.SampleRate) / float64(c.BatchLength))
	return int(nbatch) * c.BatchLength
}

// Validate checks the constraints the loops rely on. It is the collector's
// job to call it; the loops themselves never do.
func (c RunConfig) Validate() error {
	if c.Channels.Len() == 0 {
		return fmt.Errorf("%w: no channels selected", ErrInvalidConfiguration)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d, want > 0", ErrInvalidConfiguration, c.SampleRate)
	}
	if c.BatchLength <= 0 {
		return fmt.Errorf("%w: batch length %d, want > 0", ErrInvalidConfiguration, c.BatchLength)
	}
	if c.Duration < 0 || math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) {
		return fmt.Errorf("%w: duration %v, want a finite value >= 0", ErrInvalidConfiguration, c.Duration)
	}
	switch c.DurationUnit {
	case Seconds, Minutes, Hours:
	default:
		return fmt.Errorf("%w: duration unit %q", ErrInvalidConfiguration, c.DurationUnit)
	}
	if strings.TrimSpace(c.SinkPath) == "" {
		return fmt.Errorf("%w: sink path is empty", ErrInvalidConfiguration)
	}
	if c.WindowRows < 0 {
		return fmt.Errorf("%w: window rows %d, want >= 0", ErrInvalidConfiguration, c.WindowRows)
	}
	if c.TimeoutRetries < 0 {
		return fmt.Errorf("%w: timeout retries %d, want >= 0", ErrInvalidConfiguration, c.TimeoutRetries)
	}
	return nil
}
