package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestHelpersAreNilSafe(t *testing.T) {
	// nothing has called InitLogger in this package's tests
	assert.NotPanics(t, func() {
		Debug("d", String("k", "v"))
		Info("i", Int("n", 1))
		Warn("w", Bool("b", true))
		Error("e", ErrorField(errors.New("boom")))
		Sync()
	})
}
