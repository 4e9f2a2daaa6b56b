package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Field struct {
	Key   string
	Value interface{}
}

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	})
	return l
}

// SetLevel applies the configured level; unknown values fall back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

func withFields(fs []Field) *logrus.Entry {
	out := logrus.Fields{}
	for _, f := range fs {
		out[f.Key] = f.Value
	}
	return log.WithFields(out)
}

func Info(msg string, fields ...Field) {
	withFields(fields).Info(msg)
}

func Error(msg string, err error, fields ...Field) {
	withFields(fields).WithError(err).Error(msg)
}

func Debug(msg string, fields ...Field) {
	withFields(fields).Debug(msg)
}

func FieldKV(key string, value interface{}) Field { return Field{Key: key, Value: value} }
