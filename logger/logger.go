package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

type ctxKey struct{}

var (
	instance = logrus.New()
	once     sync.Once
)

// Init configures the package logger. Only the first call has any effect
func Init(level, file string, colors bool) *logrus.Logger {
	once.Do(func() {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		instance.SetLevel(lvl)
		instance.SetFormatter(&formatter.Formatter{
			NoColors:        !colors,
			TimestampFormat: "2006-01-02 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
			},
		})

		writers := []io.Writer{os.Stderr}
		if file != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   file,
				LocalTime:  true,
				Compress:   true,
				MaxSize:    100,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}
		instance.SetOutput(io.MultiWriter(writers...))
		instance.SetReportCaller(true)
	})
	return instance
}

func Get() *logrus.Logger {
	return instance
}

func Debug(fields Fields, msg string) {
	instance.WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	instance.WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	instance.WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	instance.WithFields(fields).Error(msg)
}

func Fatal(fields Fields, msg string) {
	instance.WithFields(fields).Fatal(msg)
}

// WithRequestID stores the request id for FromContext
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns an entry tagged with the request id carried by ctx, if any
func FromContext(ctx context.Context) *logrus.Entry {
	id, _ := ctx.Value(ctxKey{}).(string)
	if id == "" {
		id = "unknown"
	}
	return instance.WithField("request_id", id)
}
