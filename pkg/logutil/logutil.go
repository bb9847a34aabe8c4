// Copyright 2024 Silo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil wraps zap with the engine's logging conventions.
package logutil

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is the logging section of the engine configuration.
type LogConfig struct {
	// Level is the minimum enabled level, one of debug, info, warn, error, fatal.
	Level string `toml:"level"`
	// Format is the encoder, json or console.
	Format string `toml:"format"`
	// Filename, when set, routes output to a rotated file instead of stderr.
	Filename string `toml:"filename"`
	// MaxSize is the size in MB at which the file is rotated.
	MaxSize int `toml:"max-size"`
	// MaxDays is the retention in days for rotated files.
	MaxDays int `toml:"max-days"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max-backups"`
}

var globalLogger atomic.Pointer[zap.Logger]

func init() {
	SetupLogger(&LogConfig{Level: "info", Format: "console"})
}

// SetupLogger replaces the global logger according to cfg.
func SetupLogger(cfg *LogConfig) {
	core := zapcore.NewCore(getEncoder(cfg), getSyncer(cfg), getLevel(cfg))
	logger := zap.New(core, getOptions(cfg)...)
	globalLogger.Store(logger)
	zap.ReplaceGlobals(logger)
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() *zap.Logger {
	return globalLogger.Load()
}

func getLevel(cfg *LogConfig) zapcore.Level {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}
	return level
}

func getEncoder(cfg *LogConfig) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.Format == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func getSyncer(cfg *LogConfig) zapcore.WriteSyncer {
	if cfg.Filename != "" {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxDays,
			MaxBackups: cfg.MaxBackups,
		})
	}
	return zapcore.AddSync(os.Stderr)
}

func getOptions(_ *LogConfig) []zap.Option {
	return []zap.Option{
		zap.AddStacktrace(zapcore.FatalLevel),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	}
}

func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

func Debugf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Debugf(msg, args...)
}

func Infof(msg string, args ...any) {
	GetGlobalLogger().Sugar().Infof(msg, args...)
}

func Warnf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Warnf(msg, args...)
}

func Errorf(msg string, args ...any) {
	GetGlobalLogger().Sugar().Errorf(msg, args...)
}
