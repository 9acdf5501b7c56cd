package logging

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Gorm adapts a zerolog logger to gorm's logger interface. Statements
// slower than slow are reported at warn level, failed ones at error level,
// the rest at trace level.
type Gorm struct {
	log  zerolog.Logger
	slow time.Duration
}

func NewGorm(log zerolog.Logger, slow time.Duration) *Gorm {
	return &Gorm{log: log.With().Str("component", "gorm").Logger(), slow: slow}
}

func (g *Gorm) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	switch level {
	case gormlogger.Silent:
		cp.log = cp.log.Level(zerolog.Disabled)
	case gormlogger.Error:
		cp.log = cp.log.Level(zerolog.ErrorLevel)
	case gormlogger.Warn:
		cp.log = cp.log.Level(zerolog.WarnLevel)
	}
	return &cp
}

func (g *Gorm) Info(_ context.Context, msg string, args ...any) {
	g.log.Info().Msgf(msg, args...)
}

func (g *Gorm) Warn(_ context.Context, msg string, args ...any) {
	g.log.Warn().Msgf(msg, args...)
}

func (g *Gorm) Error(_ context.Context, msg string, args ...any) {
	g.log.Error().Msgf(msg, args...)
}

func (g *Gorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		g.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case g.slow > 0 && elapsed > g.slow:
		sql, rows := fc()
		g.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case g.log.GetLevel() <= zerolog.TraceLevel:
		sql, rows := fc()
		g.log.Trace().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}
