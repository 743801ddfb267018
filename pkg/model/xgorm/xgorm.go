// Package xgorm routes gorm's logger into xlog.
package xgorm

import (
	"context"
	"errors"
	"time"

	"vmledger/pkg/xlog"

	gl "gorm.io/gorm/logger"
)

type Config = gl.Config

var zapLogger = xlog.GetLogger()

func New(config Config) gl.Interface {
	return &logger{Config: config}
}

type logger struct {
	Config
}

func (l *logger) LogMode(level gl.LogLevel) gl.Interface {
	n := *l
	n.LogLevel = level
	return &n
}

func (l *logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gl.Info {
		zapLogger.Infof("[gorm] "+msg, data...)
	}
}

func (l *logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gl.Warn {
		zapLogger.Warningf("[gorm] "+msg, data...)
	}
}

func (l *logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gl.Error {
		zapLogger.Errorf("[gorm] "+msg, data...)
	}
}

// Trace logs failed and slow statements, and every statement at Info.
func (l *logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gl.Silent {
		return
	}

	elapsed := time.Since(begin)
	ms := float64(elapsed.Nanoseconds()) / 1e6
	switch {
	case err != nil && l.LogLevel >= gl.Error && (!errors.Is(err, gl.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError):
		sql, rows := fc()
		zapLogger.Errorf("[gorm] %s [%.3fms] [rows:%s] %s", err, ms, rowsText(rows), sql)
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= gl.Warn:
		sql, rows := fc()
		zapLogger.Warningf("[gorm] SLOW SQL >= %v [%.3fms] [rows:%s] %s", l.SlowThreshold, ms, rowsText(rows), sql)
	case l.LogLevel == gl.Info:
		sql, rows := fc()
		zapLogger.Debugf("[gorm] [%.3fms] [rows:%s] %s", ms, rowsText(rows), sql)
	}
}

func rowsText(rows int64) string {
	if rows == -1 {
		return "-"
	}
	return itoa(rows)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}
