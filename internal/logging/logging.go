// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// CLI output goes to stdout; keep logs on stderr.
	zcfg.OutputPaths = []string{"stderr"}

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", "teester")), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("TEESTER_LOG_LEVEL", "info"),
		Format: getenv("TEESTER_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Addr returns a zap field for an address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// Project returns a zap field for a project index.
func Project(idx int) zap.Field { return zap.Int("project", idx) }

// Collection returns a zap field for a collection index.
func Collection(idx int) zap.Field { return zap.Int("collection", idx) }

// TestID returns a zap field for a test index within a collection.
func TestID(idx int) zap.Field { return zap.Int("test", idx) }

// TestName returns a zap field for a test name.
func TestName(name string) zap.Field { return zap.String("test_name", name) }

// RunID returns a zap field for a run identifier.
func RunID(id string) zap.Field { return zap.String("run_id", id) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// URL returns a zap field for a request URL.
func URL(url string) zap.Field { return zap.String("url", url) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// KeyPrefix returns a zap field for the public part of an API key.
func KeyPrefix(prefix string) zap.Field { return zap.String("key_prefix", prefix) }

// Status returns a zap field for an HTTP status code.
func Status(code int) zap.Field { return zap.Int("status", code) }

// Pass returns a zap field for a test outcome.
func Pass(ok bool) zap.Field { return zap.Bool("pass", ok) }

// Field returns a zap field naming a template field (header, body, assertion).
func Field(name string) zap.Field { return zap.String("field", name) }

// DBType returns a zap field for a database type.
func DBType(t string) zap.Field { return zap.String("db_type", t) }

// Table returns a zap field for a database table.
func Table(name string) zap.Field { return zap.String("table", name) }

// Elapsed returns a zap field for a duration.
func Elapsed(d time.Duration) zap.Field { return zap.Duration("elapsed", d) }
