package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New はGO_ENVに応じたzapロガーを返す。
// prodはJSON、それ以外はコンソール向け。
func New(goEnv string, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if goEnv == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
