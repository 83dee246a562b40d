package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 结构化日志接口，键值对成对追加
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
}

// Options 日志初始化选项
type Options struct {
	Level   string   // debug / info / warn / error
	Writers []string // console / file
	File    string   // file 输出路径，空值用默认
}

type zeroLogger struct {
	z zerolog.Logger
}

// New 按选项构建 zerolog 日志器；file 输出带滚动切割
func New(opts Options) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	writers := make([]io.Writer, 0, len(opts.Writers))
	for _, w := range opts.Writers {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		case "file":
			path := opts.File
			if path == "" {
				path = "cdpnetflow.log"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   path,
				MaxSize:    64,
				MaxBackups: 7,
				MaxAge:     28,
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	z := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &zeroLogger{z: z}
}

// NewNop 返回丢弃一切输出的日志器
func NewNop() Logger {
	return &zeroLogger{z: zerolog.Nop()}
}

func (l *zeroLogger) Debug(msg string, kv ...any) { emit(l.z.Debug(), msg, kv) }

func (l *zeroLogger) Info(msg string, kv ...any) { emit(l.z.Info(), msg, kv) }

func (l *zeroLogger) Warn(msg string, kv ...any) { emit(l.z.Warn(), msg, kv) }

func (l *zeroLogger) Error(msg string, kv ...any) { emit(l.z.Error(), msg, kv) }

func (l *zeroLogger) Err(err error, msg string, kv ...any) { emit(l.z.Error().Err(err), msg, kv) }

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(k, kv[i+1])
	}
	e.Msg(msg)
}
