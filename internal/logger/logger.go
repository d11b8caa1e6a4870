package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
)

// Init builds the process logger. Console commands log to stderr so that
// table output on stdout stays clean; watch mode switches to JSON.
func Init(debug, jsonOutput bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if jsonOutput {
		cfg.Encoding = "json"
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	Logger = logger
	Sugar = logger.Sugar()
	return nil
}

func InitSilent() {
	Logger = zap.NewNop()
	Sugar = Logger.Sugar()
}

// Packages log through the globals; until Init runs they are no-ops.
func init() {
	InitSilent()
}

func Sync() {
	if Logger != nil {
		Logger.Sync()
	}
}
