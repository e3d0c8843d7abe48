package scopelog

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Waveform selects the signal a SimulatedSession synthesizes.
type Waveform int

// Waveforms a SimulatedSession can produce.
const (
	SineWave Waveform = iota
	TriangleWave
	NoiseWave
)

// ParseWaveform converts "sine", "triangle", or "noise" to a Waveform.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sine":
		return SineWave, nil
	case "triangle":
		return TriangleWave, nil
	case "noise":
		return NoiseWave, nil
	}
	return SineWave, fmt.Errorf("waveform %q not recognized, want sine, triangle or noise", s)
}

// SimulatedConfig holds the parameters of a SimulatedSession.
type SimulatedConfig struct {
	Waveform  Waveform
	Amplitude float64       // volts
	Frequency float64       // Hz of the synthesized signal
	Stall     time.Duration // extra delay added to every read
	Seed      int64
}

// sessionState tracks a session through its life.
type sessionState int

const (
	sessionOpen sessionState = iota
	sessionConfigured
	sessionRunning
	sessionStopped
	sessionClosed
)

// SimulatedSession is a HardwareSession that synthesizes one waveform per
// channel, delivering each batch no sooner than the hardware would have
// filled it.
type SimulatedSession struct {
	channels    ChannelSet
	config      SimulatedConfig
	sampleRate  float64
	batchLength int
	timeperbuf  time.Duration
	lastread    time.Time
	nextSample  int64
	rng         *rand.Rand
	state       sessionState
	sync.Mutex  // guards state
}

// NewSimulatedSession opens a simulated session on channels.
func NewSimulatedSession(channels ChannelSet, config SimulatedConfig) *SimulatedSession {
	if config.Amplitude == 0 {
		config.Amplitude = 1.0
	}
	if config.Frequency == 0 {
		config.Frequency = 5.0
	}
	return &SimulatedSession{
		channels: channels,
		config:   config,
		rng:      rand.New(rand.NewSource(config.Seed)),
	}
}

// SimulatedOpener returns a SessionOpener producing SimulatedSessions.
func SimulatedOpener(config SimulatedConfig) SessionOpener {
	return func(channels ChannelSet) (HardwareSession, error) {
		if channels.Len() == 0 {
			return nil, fmt.Errorf("simulated session needs at least one channel")
		}
		return NewSimulatedSession(channels, config), nil
	}
}

// Configure sets the sample rate and batch length.
func (ss *SimulatedSession) Configure(sampleRate int, batchLength int) error {
	ss.Lock()
	defer ss.Unlock()
	if ss.state != sessionOpen && ss.state != sessionConfigured {
		return fmt.Errorf("cannot configure a simulated session that is %v", ss.state)
	}
	if sampleRate <= 0 || batchLength <= 0 {
		return fmt.Errorf("simulated session rate=%d batch=%d, want both > 0", sampleRate, batchLength)
	}
	ss.sampleRate = float64(sampleRate)
	ss.batchLength = batchLength
	ss.timeperbuf = time.Duration(float64(batchLength) / ss.sampleRate * float64(time.Second))
	ss.state = sessionConfigured
	return nil
}

// Start begins the (simulated) sample clock.
func (ss *SimulatedSession) Start() error {
	ss.Lock()
	defer ss.Unlock()
	if ss.state != sessionConfigured && ss.state != sessionStopped {
		return fmt.Errorf("cannot start a simulated session that is %v", ss.state)
	}
	ss.lastread = time.Now()
	ss.state = sessionRunning
	return nil
}

// Read blocks until batchLength samples per channel would have been acquired,
// then returns them. Single-channel sessions return a flat payload.
func (ss *SimulatedSession) Read(ctx context.Context, batchLength int) (RawBlock, error) {
	ss.Lock()
	if ss.state != sessionRunning {
		state := ss.state
		ss.Unlock()
		return RawBlock{}, fmt.Errorf("cannot read a simulated session that is %v", state)
	}
	timeperbuf := ss.timeperbuf
	if batchLength != ss.batchLength {
		timeperbuf = time.Duration(float64(batchLength) / ss.sampleRate * float64(time.Second))
	}
	nextread := ss.lastread.Add(timeperbuf + ss.config.Stall)
	ss.Unlock()

	if waittime := time.Until(nextread); waittime > 0 {
		timer := time.NewTimer(waittime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return RawBlock{}, ctx.Err()
		case <-timer.C:
		}
	}

	ss.Lock()
	defer ss.Unlock()
	ss.lastread = nextread
	nchan := ss.channels.Len()
	columns := make([][]float64, nchan)
	for c := range columns {
		columns[c] = make([]float64, batchLength)
		for i := range columns[c] {
			columns[c][i] = ss.value(c, ss.nextSample+int64(i))
		}
	}
	ss.nextSample += int64(batchLength)
	if nchan == 1 {
		return RawBlock{Flat: columns[0]}, nil
	}
	return RawBlock{Channels: columns}, nil
}

// value is the synthesized reading on channel c at sample number n. Channels
// are offset in phase by 1/8 cycle each so they can be told apart on a plot.
func (ss *SimulatedSession) value(c int, n int64) float64 {
	t := float64(n) / ss.sampleRate
	phase := ss.config.Frequency*t + float64(c)/8.0
	phase -= math.Floor(phase)
	amp := ss.config.Amplitude
	switch ss.config.Waveform {
	case TriangleWave:
		return amp * (1 - 4*math.Abs(phase-0.5))
	case NoiseWave:
		return amp / 3 * ss.rng.NormFloat64()
	}
	return amp * math.Sin(2*math.Pi*phase)
}

// Stop halts the sample clock. Stopping a session that is not running is a no-op.
func (ss *SimulatedSession) Stop() error {
	ss.Lock()
	defer ss.Unlock()
	if ss.state == sessionRunning {
		ss.state = sessionStopped
	}
	return nil
}

// Close releases the session. Closing twice is an error.
func (ss *SimulatedSession) Close() error {
	ss.Lock()
	defer ss.Unlock()
	if ss.state == sessionClosed {
		return fmt.Errorf("simulated session already closed")
	}
	ss.state = sessionClosed
	return nil
}

func (s sessionState) String() string {
	switch s {
	case sessionOpen:
		return "open"
	case sessionConfigured:
		return "configured"
	case sessionRunning:
		return "running"
	case sessionStopped:
		return "stopped"
	case sessionClosed:
		return "closed"
	}
	return fmt.Sprintf("sessionState(%d)", int(s))
}
