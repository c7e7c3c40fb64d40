package logger

import (
	"bytes"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupJSONIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, true)
	defer Setup(&bytes.Buffer{}, false)

	log.Error().Stack().Err(pkgerrors.New("boom")).Str("key", "1:2:3").Msg("key failed")

	out := buf.String()
	assert.Contains(t, out, `"key":"1:2:3"`)
	assert.Contains(t, out, `"stack":[`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetLevel("WARN")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	SetLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestLevelForMode(t *testing.T) {
	assert.Equal(t, "trace", LevelForMode("trace", "release"))
	assert.Equal(t, "info", LevelForMode("", "release"))
	assert.Equal(t, "debug", LevelForMode("", "debug"))
}
