package scopelog

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Gitdate string
	Date    string
	Host    string
	Summary string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.1",
	Githash: "no git hash computed",
	Gitdate: "no git date computed",
	Date:    "no build date computed",
}

// StartTime is a global holding the time init() was run
var StartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *zap.Logger

// UpdateLogger will log run progress and status messages to a file
var UpdateLogger *zap.Logger

func init() {
	StartTime = time.Now()

	// The main program will override these, but at least initialize with sensible values
	ProblemLogger = newConsoleLogger(zapcore.WarnLevel)
	UpdateLogger = zap.NewNop()
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
