package xlog

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Zap = zap.NewExample()

	// EnvMode "release" drops debug lines from the file core
	EnvMode  = "development"
	EnvColor = false
)

func init() {
	if mode := os.Getenv("XLOG_MODE"); mode != "" {
		EnvMode = mode
	}

	color := os.Getenv("XLOG_COLOR")
	if color == "" && flag.Lookup("test.v") == nil {
		color = "true"
	}
	EnvColor = color != "" && color != "false" && color != "0"
}

// Options for Init. Zero values are filled with defaults.
type Options struct {
	Name       string
	LogPath    string
	MaxSizeMB  int
	MaxBackups int
	Stdout     bool
	Hook       func(p []byte) // receives every non debug JSON line
}

// Init replaces Zap with a logger writing to name's rotating log file.
func Init(name string, logPath string, hook func(p []byte)) {
	InitWith(Options{Name: name, LogPath: logPath, Stdout: true, Hook: hook})
}

func InitWith(opts Options) {
	if opts.Name == "" {
		opts.Name = "vmledger"
	}
	if opts.LogPath == "" {
		opts.LogPath = filepath.Join("logs", opts.Name+".log")
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 128
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 30
	}

	Zap = NewZap(opts, EnvMode != "release")
	Zap.Info("zap init succeed", FileField())
}

func NewZap(opts Options, debug bool) *zap.Logger {
	file := &lumberjack.Logger{
		Filename:   opts.LogPath,
		MaxSize:    opts.MaxSizeMB,
		MaxAge:     30,
		MaxBackups: opts.MaxBackups,
	}
	console = &ConsoleWriter{Stdout: opts.Stdout, Color: EnvColor, Hook: opts.Hook}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "file",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level.SetLevel(zap.DebugLevel)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(file), zapcore.AddSync(console)),
		level,
	)

	return zap.New(core, zap.Development(), zap.Fields(zap.String("app", opts.Name)))
}

func FileField() zap.Field {
	return zap.String("file", FileWithLineNum())
}

// skipCallers are frames that belong to the logging plumbing, not the caller.
var skipCallers = []string{
	"/pkg/xlog/",
	"/pkg/model/xgorm/",
	"gin-gonic/gin",
	"gorm.io/gorm",
}

// FileWithLineNum returns "dir/file.go:line" of the first frame outside the logging plumbing.
func FileWithLineNum() string {
	file, line := "", 0
	for i := 1; i < 16; i++ {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if !skipped(f) || strings.HasSuffix(f, "_test.go") {
			file, line = f, l
			break
		}
	}

	dir, name := filepath.Split(file)
	return fmt.Sprintf("%s/%s:%d", filepath.Base(dir), name, line)
}

func skipped(file string) bool {
	for _, s := range skipCallers {
		if strings.Contains(file, s) {
			return true
		}
	}
	return false
}
