package main

import (
	"context"
	"io"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/rs/zerolog"
)

type zeroLogger struct {
	log zerolog.Logger
}

var _ session.Logger = zeroLogger{}

func newLogger(w io.Writer, level string) (zeroLogger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zeroLogger{}, err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Str("component", "session").
		Logger()
	return zeroLogger{log: log}, nil
}

func (l zeroLogger) Debug(format string, args ...any) { l.log.Debug().Msgf(format, args...) }
func (l zeroLogger) Info(format string, args ...any)  { l.log.Info().Msgf(format, args...) }
func (l zeroLogger) Warn(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l zeroLogger) Error(format string, args ...any) { l.log.Error().Msgf(format, args...) }

// activity logs machine activity events at info level.
func (l zeroLogger) activity() session.ActivitySink {
	return session.ActivitySinkFunc(func(_ context.Context, ev session.ActivityEvent) error {
		entry := l.log.Info().
			Str("event_type", string(ev.EventType)).
			Str("event", ev.Event).
			Str("from", ev.FromState.String()).
			Str("to", ev.ToState.String())
		if ev.UserID != "" {
			entry = entry.Str("user_id", ev.UserID)
		}
		if len(ev.Metadata) > 0 {
			entry = entry.Interface("metadata", ev.Metadata)
		}
		entry.Msg("session activity")
		return nil
	})
}
