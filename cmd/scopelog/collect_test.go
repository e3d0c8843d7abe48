package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usnistgov/scopelog"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestCollectDefaults(t *testing.T) {
	v := newTestViper()
	cfg, err := collectRunConfig(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dev1/ai0"}, cfg.Channels.Names())
	assert.Equal(t, 1000, cfg.SampleRate)
	assert.Equal(t, 100, cfg.BatchLength)
	assert.Equal(t, scopelog.Seconds, cfg.DurationUnit)
	assert.Equal(t, scopelog.DefaultWindowRows, cfg.WindowRows)
	assert.Equal(t, scopelog.DefaultRedrawInterval, cfg.RedrawInterval)
	assert.Equal(t, scopelog.AbortOnTimeout, cfg.TimeoutPolicy)
}

func TestCollectFlagsOverrideConfig(t *testing.T) {
	v := newTestViper()
	v.Set("rate", 500)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	defineFlags(fs)
	require.NoError(t, fs.Parse([]string{"--channels=1,Dev2/ai7", "--rate=2000", "--unit=minutes", "--duration=0.5"}))
	require.NoError(t, v.BindPFlags(fs))

	cfg, err := collectRunConfig(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dev1/ai1", "Dev2/ai7"}, cfg.Channels.Names())
	assert.Equal(t, 500, cfg.SampleRate, "explicit Set outranks flags")
	assert.Equal(t, scopelog.Minutes, cfg.DurationUnit)
	if got, want := cfg.DurationSeconds(), 30.0; got != want {
		t.Errorf("DurationSeconds() = %v, want %v", got, want)
	}
}

func TestCollectRejects(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
	}{
		{"rate", 0},
		{"rate", -5},
		{"batch", 0},
		{"duration", -1.0},
		{"unit", "fortnights"},
		{"channels", []string{}},
		{"channels", []string{"0", "Dev1/ai0"}},
		{"channels", []string{"32"}},
		{"channels", []string{"abc"}},
		{"sink", "  "},
		{"timeoutpolicy", "ignore"},
	}
	for _, test := range tests {
		v := newTestViper()
		v.Set(test.key, test.value)
		_, err := collectRunConfig(v)
		assert.ErrorIs(t, err, scopelog.ErrInvalidConfiguration, "%s=%v", test.key, test.value)
	}
}

func TestQualifyChannels(t *testing.T) {
	got, err := qualifyChannels("PXI1Slot2", []string{"0", " ai3 ", "", "Dev1/ai9"})
	require.NoError(t, err)
	want := []string{"PXI1Slot2/ai0", "PXI1Slot2/ai3", "Dev1/ai9"}
	assert.Equal(t, want, got)

	got, err = qualifyChannels("", []string{"31"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dev1/ai31"}, got)
}

func TestOpenerFor(t *testing.T) {
	v := newTestViper()
	opener, err := openerFor(v)
	require.NoError(t, err)
	cs, err := scopelog.NewChannelSet("Dev1/ai0")
	require.NoError(t, err)
	session, err := opener(cs)
	require.NoError(t, err)
	assert.NoError(t, session.Close())

	v.Set("driver", "nidaqmx")
	_, err = openerFor(v)
	assert.ErrorIs(t, err, scopelog.ErrInvalidConfiguration)

	v.Set("driver", "sim")
	v.Set("waveform", "square")
	_, err = openerFor(v)
	assert.ErrorIs(t, err, scopelog.ErrInvalidConfiguration)
}

func TestRendererFor(t *testing.T) {
	v := newTestViper()
	cfg := scopelog.RunConfig{SinkPath: filepath.Join("data", "run.csv"), MirrorNPY: true}
	r, ok := rendererFor(v, cfg).(scopelog.MultiRenderer)
	require.True(t, ok)
	require.Len(t, r, 2)
	plot, ok := r[0].(*scopelog.PlotRenderer)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("data", "run_frame.png"), plot.Filename)
	assert.Equal(t, scopelog.NPYSnapshotRenderer{Filename: filepath.Join("data", "run_frame.npy")}, r[1])
}

func TestRememberRunConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("rate: 100\n"), 0644))

	v := viper.New()
	require.NoError(t, setupViper(v, configFile))
	cfg, err := collectRunConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.SampleRate)

	cfg.SampleRate = 250
	cfg.Duration = 3
	cfg.RedrawInterval = time.Second
	require.NoError(t, rememberRunConfig(v, cfg, "somewhere"))

	v2 := viper.New()
	require.NoError(t, setupViper(v2, configFile))
	cfg2, err := collectRunConfig(v2)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg2.SampleRate)
	assert.Equal(t, 3.0, cfg2.Duration)
	assert.Equal(t, "somewhere", cfg2.SinkPath)
	assert.Equal(t, cfg.Channels.Names(), cfg2.Channels.Names())
}

func TestMakeFileExist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	name, err := makeFileExist(dir, "x.log")
	require.NoError(t, err)
	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// A second call leaves the file alone.
	require.NoError(t, os.WriteFile(name, []byte("keep"), 0644))
	_, err = makeFileExist(dir, "x.log")
	require.NoError(t, err)
	contents, _ := os.ReadFile(name)
	assert.Equal(t, "keep", string(contents))

	// Callers pass absolute paths; no variables are expanded.
	literal := filepath.Join(t.TempDir(), "$HOME")
	name, err = makeFileExist(literal, "y.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(literal, "y.log"), name)
	_, err = os.Stat(name)
	assert.NoError(t, err)
}
