package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for name, want := range tests {
		log := NewLogger("librarydb", name)
		assert.True(t, log.Core().Enabled(want), name)
		if want > zapcore.DebugLevel {
			assert.False(t, log.Core().Enabled(want-1), name)
		}
	}
}
