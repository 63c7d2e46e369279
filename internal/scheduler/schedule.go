package scheduler

import (
	"time"

	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/markethours"
)

// gatedSchedule fires every open interval while the market is open and
// every closed interval otherwise.
type gatedSchedule struct {
	hours  markethours.Predicate
	open   time.Duration
	closed time.Duration
}

func (g gatedSchedule) Next(t time.Time) time.Time {
	if g.hours.IsOpen(t) {
		return t.Add(g.open)
	}
	return t.Add(g.closed)
}

// cronLogger adapts cron's logger onto zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
