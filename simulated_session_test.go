package scopelog

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSessionLifecycle(t *testing.T) {
	ss := NewSimulatedSession(mustChannels("a"), SimulatedConfig{})
	_, err := ss.Read(context.Background(), 10)
	assert.Error(t, err, "read before start")
	assert.Error(t, ss.Start(), "start before configure")
	assert.Error(t, ss.Configure(0, 10))
	require.NoError(t, ss.Configure(10000, 10))
	require.NoError(t, ss.Start())
	assert.Error(t, ss.Configure(1000, 10), "configure while running")

	raw, err := ss.Read(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, raw.Flat, 10)
	assert.Nil(t, raw.Channels)

	require.NoError(t, ss.Stop())
	require.NoError(t, ss.Stop())
	require.NoError(t, ss.Start(), "a stopped session can restart")
	require.NoError(t, ss.Close())
	assert.Error(t, ss.Close())
}

func TestSimulatedSessionPacing(t *testing.T) {
	ss := NewSimulatedSession(mustChannels("a", "b"), SimulatedConfig{Waveform: TriangleWave})
	require.NoError(t, ss.Configure(1000, 20))
	t0 := time.Now()
	require.NoError(t, ss.Start())
	defer ss.Close()

	for i := 0; i < 3; i++ {
		raw, err := ss.Read(context.Background(), 20)
		require.NoError(t, err)
		require.Len(t, raw.Channels, 2)
		assert.Len(t, raw.Channels[1], 20)
		for _, v := range raw.Channels[0] {
			if math.Abs(v) > 1 {
				t.Fatalf("triangle sample %v outside [-1, 1]", v)
			}
		}
	}
	if elapsed := time.Since(t0); elapsed < 60*time.Millisecond {
		t.Errorf("3 reads of 20 samples at 1 kHz took %v, want at least 60ms", elapsed)
	}
}

func TestSimulatedSessionTimeout(t *testing.T) {
	ss := NewSimulatedSession(mustChannels("a"), SimulatedConfig{Stall: time.Second})
	require.NoError(t, ss.Configure(1000, 10))
	require.NoError(t, ss.Start())
	defer ss.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ss.Read(ctx, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulatedWaveforms(t *testing.T) {
	for _, name := range []string{"sine", "triangle", "noise"} {
		w, err := ParseWaveform(name)
		require.NoError(t, err)
		ss := NewSimulatedSession(mustChannels("a", "b"), SimulatedConfig{Waveform: w, Amplitude: 2, Seed: 1})
		require.NoError(t, ss.Configure(1000, 100))
		if w != NoiseWave {
			// Channels are offset in phase, so they differ.
			assert.NotEqual(t, ss.value(0, 3), ss.value(1, 3), name)
			assert.LessOrEqual(t, math.Abs(ss.value(0, 17)), 2.0, name)
		}
	}
	_, err := ParseWaveform("square")
	assert.Error(t, err)

	sine := NewSimulatedSession(mustChannels("a"), SimulatedConfig{})
	require.NoError(t, sine.Configure(1000, 10))
	assert.InDelta(t, 0.0, sine.value(0, 0), 1e-12)
	assert.InDelta(t, 1.0, sine.value(0, 50), 1e-9, "quarter period of a 5 Hz sine at 1 kHz")
}

func TestSimulatedOpener(t *testing.T) {
	opener := SimulatedOpener(SimulatedConfig{})
	_, err := opener(ChannelSet{})
	assert.Error(t, err)
	s, err := opener(mustChannels("Dev1/ai0"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
