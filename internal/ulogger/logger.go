// Package ulogger is a thin leveled-logging facade matching the logger
// shape used across the surrounding services (New(name) returns a
// child logger; Debugf/Infof/Warnf/Errorf/Fatalf take printf verbs),
// backed by zerolog the way the teacher's ZLoggerWrapper is.
package ulogger

import (
	"os"

	"github.com/rs/zerolog"
)

type Logger interface {
	New(service string) Logger
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

type zeroLogger struct {
	l zerolog.Logger
}

// New returns a root logger that writes JSON lines to stderr tagged
// with the given service name, the way NewZeroLogger tags its output.
func New(service string) Logger {
	l := zerolog.New(os.Stderr).With().Timestamp().Str("service", service).Logger()
	return &zeroLogger{l: l}
}

func (z *zeroLogger) New(component string) Logger {
	return &zeroLogger{l: z.l.With().Str("component", component).Logger()}
}

func (z *zeroLogger) Debugf(format string, args ...interface{}) { z.l.Debug().Msgf(format, args...) }
func (z *zeroLogger) Infof(format string, args ...interface{})  { z.l.Info().Msgf(format, args...) }
func (z *zeroLogger) Warnf(format string, args ...interface{})  { z.l.Warn().Msgf(format, args...) }
func (z *zeroLogger) Errorf(format string, args ...interface{}) { z.l.Error().Msgf(format, args...) }

// Fatalf logs at fatal level and terminates the process, mirroring
// zerolog.Event.Msg's own os.Exit(1) on the fatal level.
func (z *zeroLogger) Fatalf(format string, args ...interface{}) { z.l.Fatal().Msgf(format, args...) }
