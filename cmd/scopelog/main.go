package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/usnistgov/scopelog"
	"github.com/usnistgov/scopelog/internal/rundb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}

	fullname := path.Join(dir, filename)
	if _, err := os.Stat(fullname); os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find config
// files and the filename and suffix. Sets the defaults. A non-empty configFile
// replaces the search.
func setupViper(v *viper.Viper, configFile string) error {
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		return v.ReadInConfig()
	}

	HOME, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("finding user home dir: %w", err)
	}
	dotScopelog := filepath.Join(HOME, ".scopelog")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotScopelog, filename+suffix); err != nil {
		return err
	}

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.FromSlash("/etc/scopelog"))
	v.AddConfigPath(dotScopelog)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// startLogger returns a logger writing JSON lines to the rotated file
// pfname, and also to stderr at level echo and above.
func startLogger(pfname string, echo zapcore.Level) *zap.Logger {
	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), rotated, zapcore.DebugLevel)
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr), echo)
	return zap.New(zapcore.NewTee(fileCore, consoleCore))
}

func main() {
	os.Exit(run())
}

func run() int {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	scopelog.Build.Date = buildDate
	scopelog.Build.Githash = githash
	scopelog.Build.Gitdate = gitdate
	scopelog.Build.Summary = fmt.Sprintf("SCOPELOG version %s (git commit %s of %s)", scopelog.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		scopelog.Build.Host = host
	} else {
		scopelog.Build.Host = "host not detected"
	}

	flags := pflag.NewFlagSet("scopelog", pflag.ExitOnError)
	printVersion := flags.Bool("version", false, "print version and quit")
	configFile := flags.String("config", "", "read this config file instead of ~/.scopelog/config.yaml")
	defineFlags(flags)
	flags.Parse(os.Args[1:])

	if *printVersion {
		fmt.Printf("This is SCOPELOG version %s\n", scopelog.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		fmt.Printf("Running on %d CPUs.\n", runtime.NumCPU())
		return 0
	}

	banner := fmt.Sprintf("\nThis is SCOPELOG version %s (git commit %s)\n", scopelog.Build.Version, githash)
	fmt.Print(banner)

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".scopelog", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	scopelog.ProblemLogger = startLogger(problemname, zapcore.WarnLevel)
	scopelog.UpdateLogger = startLogger(logname, zapcore.FatalLevel)
	defer scopelog.ProblemLogger.Sync()
	defer scopelog.UpdateLogger.Sync()
	fmt.Printf("Logging problems       to %s\n", problemname)
	fmt.Printf("Logging client updates to %s\n\n", logname)
	scopelog.UpdateLogger.Info(banner)

	// Find config file, creating it if needed, and read it.
	v := viper.GetViper()
	if err := setupViper(v, *configFile); err != nil {
		panic(err)
	}
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	cfg, err := collectRunConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid run configuration: %v\n", err)
		return 2
	}
	opener, err := openerFor(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid run configuration: %v\n", err)
		return 2
	}
	configuredSink := cfg.SinkPath
	if cfg.SinkPath, err = scopelog.ResolveSinkPath(cfg.SinkPath); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot use sink %q: %v\n", configuredSink, err)
		return 1
	}
	scopelog.UpdateLogger.Info("[main] run configuration", zap.String("config", spew.Sdump(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updater, err := scopelog.StartClientUpdater(v.GetInt("statusport"))
	if err != nil {
		scopelog.ProblemLogger.Error("[main] status publisher not started", zap.Error(err))
		return 1
	}
	defer updater.Close()

	abort := make(chan struct{})
	db := rundb.Dummy()
	if v.GetBool("database") {
		opt := rundb.DefaultOptions()
		opt.Version = scopelog.Build.Version
		db = rundb.Start(opt, &rundb.ActivityMessage{
			ID:        scopelog.NewRunID(),
			Hostname:  scopelog.Build.Host,
			Githash:   githash,
			Version:   scopelog.Build.Version,
			GoVersion: runtime.Version(),
			CPUs:      runtime.NumCPU(),
			Start:     scopelog.StartTime,
		}, abort, scopelog.ProblemLogger)
	}
	defer db.Wait()
	defer close(abort)

	pipeline := scopelog.Pipeline{
		Config:   cfg,
		Opener:   opener,
		Renderer: rendererFor(v, cfg),
		Updates:  updater,
		RunID:    scopelog.NewRunID(),
	}
	runmsg := &rundb.AcqRunMessage{
		ID:              pipeline.RunID,
		Channels:        cfg.Channels.Names(),
		SampleRate:      cfg.SampleRate,
		BatchLength:     cfg.BatchLength,
		DurationSeconds: cfg.DurationSeconds(),
		SinkPath:        cfg.SinkPath,
		Start:           time.Now(),
	}
	db.RecordRun(runmsg)

	fmt.Printf("Run %s: %d channel(s) at %d Hz for %g %s into %s\n", pipeline.RunID,
		cfg.Channels.Len(), cfg.SampleRate, cfg.Duration, cfg.DurationUnit, cfg.SinkPath)
	summary, err := pipeline.Run(ctx)
	runmsg.Batches = summary.Batches
	runmsg.Rows = summary.RowsWritten
	if err != nil {
		runmsg.Error = err.Error()
	}
	db.FinishRun(runmsg)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Run %s failed after %d rows: %v\n", summary.RunID, summary.RowsWritten, err)
		if errors.Is(err, scopelog.ErrHardwareTimeout) {
			fmt.Fprintln(os.Stderr, "The device stopped delivering data; check the driver and wiring.")
		}
		return 1
	}
	fmt.Printf("Run %s finished: %d batches, %d rows, %d frames in %v\n", summary.RunID,
		summary.Batches, summary.RowsWritten, summary.Frames, summary.End.Sub(summary.Start).Round(time.Millisecond))
	if err := rememberRunConfig(v, cfg, configuredSink); err != nil {
		scopelog.ProblemLogger.Warn("[main] could not store run configuration", zap.Error(err))
	}
	return 0
}
