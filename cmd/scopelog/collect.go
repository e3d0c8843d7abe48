package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/usnistgov/scopelog"
)

const (
	defaultDevice = "Dev1"
	maxBareIndex  = 31 // the acquisition card exposes ai0 through ai31
)

// setDefaults gives every configuration key a value, so a fresh config file
// yields a valid one-second simulated run on a single channel.
func setDefaults(v *viper.Viper) {
	v.SetDefault("device", defaultDevice)
	v.SetDefault("channels", []string{"0"})
	v.SetDefault("rate", 1000)
	v.SetDefault("batch", 100)
	v.SetDefault("duration", 1.0)
	v.SetDefault("unit", string(scopelog.Seconds))
	v.SetDefault("sink", "scopelog.csv")
	v.SetDefault("window", scopelog.DefaultWindowRows)
	v.SetDefault("redraw", scopelog.DefaultRedrawInterval)
	v.SetDefault("driver", "sim")
	v.SetDefault("waveform", "sine")
	v.SetDefault("readtimeout", scopelog.DefaultReadTimeout)
	v.SetDefault("timeoutpolicy", scopelog.AbortOnTimeout.String())
	v.SetDefault("retries", scopelog.DefaultTimeoutRetries)
	v.SetDefault("mirrornpy", false)
	v.SetDefault("plotfile", "")
	v.SetDefault("statusport", 0)
	v.SetDefault("database", false)
}

// defineFlags adds the run flags to fs. Each flag overrides the config key of
// the same name once bound with viper.BindPFlags.
func defineFlags(fs *pflag.FlagSet) {
	fs.StringSlice("channels", nil, "channels to record, as Dev1/ai0 names or bare indices")
	fs.Int("rate", 0, "sample rate per channel (Hz)")
	fs.Int("batch", 0, "samples per channel per read")
	fs.Float64("duration", 0, "run duration, in -unit")
	fs.String("unit", "", "duration unit: seconds, minutes or hours")
	fs.String("sink", "", "CSV file to write, or a directory for dated run files")
	fs.Int("window", 0, "rows in the trailing plot window")
	fs.String("driver", "", "hardware driver (sim)")
}

// collectRunConfig builds and validates a RunConfig from the configuration.
// The sink path is returned as configured; see scopelog.ResolveSinkPath.
func collectRunConfig(v *viper.Viper) (scopelog.RunConfig, error) {
	var cfg scopelog.RunConfig
	names, err := qualifyChannels(v.GetString("device"), v.GetStringSlice("channels"))
	if err != nil {
		return cfg, err
	}
	if cfg.Channels, err = scopelog.NewChannelSet(names...); err != nil {
		return cfg, err
	}
	if cfg.DurationUnit, err = scopelog.ParseDurationUnit(v.GetString("unit")); err != nil {
		return cfg, err
	}
	if cfg.TimeoutPolicy, err = scopelog.ParseTimeoutPolicy(v.GetString("timeoutpolicy")); err != nil {
		return cfg, err
	}
	cfg.SampleRate = v.GetInt("rate")
	cfg.BatchLength = v.GetInt("batch")
	cfg.Duration = v.GetFloat64("duration")
	cfg.SinkPath = strings.TrimSpace(v.GetString("sink"))
	cfg.WindowRows = v.GetInt("window")
	cfg.RedrawInterval = v.GetDuration("redraw")
	cfg.ReadTimeout = v.GetDuration("readtimeout")
	cfg.TimeoutRetries = v.GetInt("retries")
	cfg.MirrorNPY = v.GetBool("mirrornpy")
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// qualifyChannels turns bare indices ("3") and bare input names ("ai3") into
// device-qualified names ("Dev1/ai3"). Names that already carry a device are
// kept as they are.
func qualifyChannels(device string, ids []string) ([]string, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		device = defaultDevice
	}
	names := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		switch {
		case id == "":
			continue
		case strings.Contains(id, "/"):
			names = append(names, id)
		default:
			idx, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(id), "ai"))
			if err != nil || idx < 0 || idx > maxBareIndex {
				return nil, fmt.Errorf("%w: channel %q, want Dev/aiN or an index 0-%d",
					scopelog.ErrInvalidConfiguration, raw, maxBareIndex)
			}
			names = append(names, fmt.Sprintf("%s/ai%d", device, idx))
		}
	}
	return names, nil
}

// openerFor returns the SessionOpener for the configured driver.
func openerFor(v *viper.Viper) (scopelog.SessionOpener, error) {
	switch driver := strings.ToLower(v.GetString("driver")); driver {
	case "sim", "simulated":
		waveform, err := scopelog.ParseWaveform(v.GetString("waveform"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", scopelog.ErrInvalidConfiguration, err)
		}
		return scopelog.SimulatedOpener(scopelog.SimulatedConfig{
			Waveform: waveform,
			Seed:     time.Now().UnixNano(),
		}), nil
	default:
		return nil, fmt.Errorf("%w: driver %q not available, want sim", scopelog.ErrInvalidConfiguration, driver)
	}
}

// rendererFor returns the frame renderer: a PNG next to the sink (or at
// plotfile), plus an .npy snapshot when the sink is mirrored.
func rendererFor(v *viper.Viper, cfg scopelog.RunConfig) scopelog.Renderer {
	base := strings.TrimSuffix(cfg.SinkPath, filepath.Ext(cfg.SinkPath))
	plotfile := v.GetString("plotfile")
	if plotfile == "" {
		plotfile = base + "_frame.png"
	}
	renderers := scopelog.MultiRenderer{scopelog.NewPlotRenderer(plotfile)}
	if cfg.MirrorNPY {
		renderers = append(renderers, scopelog.NPYSnapshotRenderer{Filename: base + "_frame.npy"})
	}
	return renderers
}

// rememberRunConfig stores the settings of a successful run in the config
// file so the next run starts from them.
func rememberRunConfig(v *viper.Viper, cfg scopelog.RunConfig, configuredSink string) error {
	v.Set("channels", cfg.Channels.Names())
	v.Set("rate", cfg.SampleRate)
	v.Set("batch", cfg.BatchLength)
	v.Set("duration", cfg.Duration)
	v.Set("unit", string(cfg.DurationUnit))
	v.Set("sink", configuredSink)
	v.Set("window", cfg.WindowRows)
	return v.WriteConfig()
}
