package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerDefaultsToDiscard(t *testing.T) {
	assert.Equal(t, Discard, GetLogger(context.Background()))
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(&buf, LevelWarn)
	ctx := WithLogger(context.Background(), l)

	GetLogger(ctx).Infof("hidden %d", 1)
	GetLogger(ctx).Warnf("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN shown 2")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
