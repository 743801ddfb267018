// Package xlog is the leveled logger shared by every package. Lines go
// through zap: JSON into a rotating file, a readable copy to stdout.
package xlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

type Level int32

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARNING
	ERROR
	FATAL
)

var levelNames = []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "FATAL"}
var levelTags = []string{"[TRC]", "[DBG]", "[INF]", "[WRN]", "[ERR]", "[FTL]"}

func (lv Level) String() string {
	if lv < TRACE || lv > FATAL {
		return fmt.Sprintf("Level(%d)", int32(lv))
	}
	return levelNames[lv]
}

// ParseLevel accepts full names and the usual short forms (T, TRC, ...).
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T", "TRC", "TRACE":
		return TRACE, true
	case "D", "DBG", "DEBUG":
		return DEBUG, true
	case "I", "INF", "INFO":
		return INFO, true
	case "W", "WRN", "WARN", "WARNING":
		return WARNING, true
	case "E", "ERR", "ERROR":
		return ERROR, true
	case "F", "FTL", "FATAL":
		return FATAL, true
	}
	return INFO, false
}

type Logger struct {
	level atomic.Int32
}

var (
	shared     *Logger
	sharedOnce sync.Once
)

// GetLogger returns the process logger, its level read once from XLOG_LVL.
func GetLogger() *Logger {
	sharedOnce.Do(func() {
		shared = &Logger{}
		env := os.Getenv("XLOG_LVL")
		lv, _ := ParseLevel(env)
		shared.level.Store(int32(lv))
	})
	return shared
}

// SetLevel changes the level at runtime, false if name is unknown.
func (l *Logger) SetLevel(name string) bool {
	lv, ok := ParseLevel(name)
	if !ok {
		l.Warningf("set xlog level to %s failed", name)
		return false
	}
	l.level.Store(int32(lv))
	l.Infof("set xlog level to %s", lv)
	return true
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

func (l *Logger) Enabled(lv Level) bool {
	return lv >= l.Level()
}

func (l *Logger) emit(lv Level, msg string) {
	if !l.Enabled(lv) {
		return
	}
	line := levelTags[lv] + " " + msg
	switch lv {
	case TRACE, DEBUG:
		Zap.Debug(line, FileField())
	case INFO:
		Zap.Info(line, FileField())
	case WARNING:
		Zap.Warn(line, FileField())
	default:
		Zap.Error(line, FileField())
	}
}

func (l *Logger) Trace(args ...interface{}) {
	l.emit(TRACE, fmt.Sprint(args...))
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	l.emit(TRACE, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(args ...interface{}) {
	l.emit(DEBUG, fmt.Sprint(args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(DEBUG, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(args ...interface{}) {
	l.emit(INFO, fmt.Sprint(args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(INFO, fmt.Sprintf(format, args...))
}

func (l *Logger) Warning(args ...interface{}) {
	l.emit(WARNING, fmt.Sprint(args...))
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	l.emit(WARNING, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(args ...interface{}) {
	l.emit(ERROR, fmt.Sprint(args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(ERROR, fmt.Sprintf(format, args...))
}

// Fatal logs and exits, whatever the level.
func (l *Logger) Fatal(args ...interface{}) {
	Zap.Fatal(levelTags[FATAL]+" "+fmt.Sprint(args...), FileField())
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	Zap.Fatal(levelTags[FATAL]+" "+fmt.Sprintf(format, args...), FileField())
	os.Exit(1)
}

// Write lets the logger back a stdlib *log.Logger.
func (l *Logger) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	Zap.Info(strings.TrimRight(string(p), "\n"), FileField())
	return len(p), nil
}

// Sync flushes zap, call before exit.
func Sync() {
	_ = Zap.Sync()
}
