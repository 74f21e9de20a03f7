package log

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	With(args ...interface{}) Logger
	Sync() error
}

type logger struct {
	*zap.SugaredLogger
}

type Options struct {
	// Level - default info
	Level string
	// SentryDSN enables forwarding of error entries to sentry
	SentryDSN string
	// Environment is reported to sentry
	Environment string
	// Output - default stdout
	Output zapcore.WriteSyncer
}

type Option func(*Options)

func WithLevel(level string) Option {
	return func(o *Options) { o.Level = level }
}

func WithOutput(w zapcore.WriteSyncer) Option {
	return func(o *Options) { o.Output = w }
}

func WithSentry(dsn, environment string) Option {
	return func(o *Options) {
		o.SentryDSN = dsn
		o.Environment = environment
	}
}

// New creates json logger writing to stdout
func New(opts ...Option) Logger {
	options := Options{Level: "info", Output: zapcore.Lock(os.Stdout)}
	for _, opt := range opts {
		opt(&options)
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(options.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), options.Output, level)

	zapOpts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}

	var sentryErr error
	if options.SentryDSN != "" {
		sentryErr = sentry.Init(sentry.ClientOptions{
			Dsn:         options.SentryDSN,
			Environment: options.Environment,
		})
		if sentryErr == nil {
			zapOpts = append(zapOpts, zap.Hooks(sentryHook))
		}
	}

	l := &logger{zap.New(core, zapOpts...).Sugar()}
	if sentryErr != nil {
		l.Errorf("failed to init sentry, errors are not forwarded: %v", sentryErr)
	}

	return l
}

// NewNop returns logger which discards everything, used in tests
func NewNop() Logger {
	return &logger{zap.NewNop().Sugar()}
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{l.SugaredLogger.With(args...)}
}

func (l *logger) Sync() error {
	sentry.Flush(2 * time.Second)
	return l.SugaredLogger.Sync()
}

func sentryHook(entry zapcore.Entry) error {
	if entry.Level < zapcore.ErrorLevel {
		return nil
	}

	level := sentry.LevelError
	if entry.Level >= zapcore.FatalLevel {
		level = sentry.LevelFatal
	}

	sentry.CaptureEvent(&sentry.Event{
		Level:     level,
		Message:   entry.Message,
		Timestamp: entry.Time,
		Logger:    entry.LoggerName,
	})

	return nil
}
