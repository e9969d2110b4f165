package observability

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/config"
)

// Logger is the leveled structured sink shared by every server component.
// Both gofulmen's *logging.Logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Sync() error
}

// AccessChannel is the static "channel" field carried by access log records,
// separating them from application logs.
const AccessChannel = "access"

// Nop returns a logger that discards everything.
func Nop() Logger {
	return zap.NewNop()
}

// NewServerLogger builds the process logger for mode. Test mode discards all
// output; other modes log structured JSON to stderr.
func NewServerLogger(serviceName string, logLevel string, mode config.Mode, namespace ...string) (Logger, error) {
	if mode == config.ModeTest {
		return Nop(), nil
	}

	staticFields := map[string]any{}
	if len(namespace) > 0 && namespace[0] != "" {
		staticFields["namespace"] = namespace[0]
	}
	return newStructured(serviceName, logLevel, mode, staticFields)
}

// NewAccessLogger builds the logger used for one-line-per-request access
// records. Records carry channel=access.
func NewAccessLogger(serviceName string, logLevel string, mode config.Mode) (Logger, error) {
	if mode == config.ModeTest {
		return Nop(), nil
	}
	return newStructured(serviceName, logLevel, mode, map[string]any{
		"channel": AccessChannel,
	})
}

func newStructured(serviceName, logLevel string, mode config.Mode, staticFields map[string]any) (Logger, error) {
	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  string(mode),
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: "json",
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize %s logger: %w", serviceName, err)
	}
	return logger, nil
}

// parseLogLevel converts string log level to logging severity string
func parseLogLevel(levelStr string) string {
	switch levelStr {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}
