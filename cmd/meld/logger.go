package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logLevelNone = "none"

// getLogger produces a console logger writing to stderr at the given level.
func getLogger(level string) (*zap.Logger, error) {
	if level == logLevelNone {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "parsing log level %q", level)
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	zapConfig.DisableStacktrace = true
	log, err := zapConfig.Build()
	return log, errors.Wrap(err, "building logger")
}
