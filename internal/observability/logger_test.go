// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/foundry-cli/internal/config"
)

func TestInitializeConsoleFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "foundry-test",
	}, zapcore.AddSync(&buf))

	GetLogger().Named("pipeline").Info("stage complete")

	out := buf.String()
	assert.Contains(t, out, "stage complete")
	assert.Contains(t, out, "foundry-test.pipeline.")
	assert.Contains(t, out, colorGreen, "console format colorizes the level")
}

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "foundry-test",
	}, zapcore.AddSync(&buf))

	GetLogger().Warn("something odd")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"), "json format emits objects: %s", out)
	assert.Contains(t, out, `"WARN"`)
	assert.NotContains(t, out, colorYellow)
}

func TestInitializeRespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:  "error",
		Format: "json",
	}, zapcore.AddSync(&buf))

	GetLogger().Info("too quiet to hear")
	assert.Empty(t, buf.String())

	GetLogger().Error("loud enough")
	assert.Contains(t, buf.String(), "loud enough")
}

func TestInitializeIsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&second))

	GetLogger().Info("goes to the first writer")
	assert.Contains(t, first.String(), "goes to the first writer")
	assert.Empty(t, second.String())
}

func TestGetLoggerBeforeInitialization(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "shout", Format: "json"}, zapcore.AddSync(&buf))

	GetLogger().Debug("filtered at info")
	assert.Empty(t, buf.String())
	GetLogger().Info("visible at info")
	assert.Contains(t, buf.String(), "visible at info")
}
