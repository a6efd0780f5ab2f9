package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCarriesServiceField(t *testing.T) {
	var buf bytes.Buffer
	Init(false, &buf)

	Log().Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warden", line["service"])
	assert.Equal(t, "hello", line["msg"])
}

func TestInitLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(true, &buf)
	WithFields(map[string]interface{}{"k": "v"}).Debug("verbose")
	assert.Contains(t, buf.String(), "verbose")

	buf.Reset()
	Init(false, &buf)
	Log().Debug("hidden")
	assert.Empty(t, buf.String())
}
