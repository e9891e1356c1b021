// Package logger builds the zap loggers used by the command line tools.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Debug bool
	// JSON switches to structured output, e.g. when running as a service.
	JSON bool
}

// NewLogger returns a console logger at info level, or debug level when
// config.Debug is set.
func NewLogger(config *LoggerConfig) (*zap.Logger, error) {
	if config == nil {
		config = &LoggerConfig{}
	}
	var c zap.Config
	if config.JSON {
		c = zap.NewProductionConfig()
	} else {
		c = zap.NewDevelopmentConfig()
		c.Development = false
		c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		c.DisableStacktrace = true
	}
	c.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if config.Debug {
		c.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return c.Build()
}
