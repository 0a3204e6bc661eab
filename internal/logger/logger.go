package logger

import (
	"strings"
	"sync/atomic"

	"github.com/humanbelnik/towerduels/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// L returns the process-wide logger. It is a no-op logger until Init is called.
func L() *zap.Logger { return global.Load() }

func Init(cfg config.Log) (*zap.Logger, error) {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.ConsoleSeparator = " | "
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sink, _, err := zap.Open("stdout")
	if err != nil {
		return nil, err
	}

	l := zap.New(zapcore.NewCore(enc, sink, ParseLevel(cfg.Level)),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	global.Store(l)
	return l, nil
}

func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
