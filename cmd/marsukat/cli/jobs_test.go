package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYear(t *testing.T) {
	y, err := parseYear("")
	require.NoError(t, err)
	assert.Zero(t, y)

	y, err = parseYear("2024")
	require.NoError(t, err)
	assert.Equal(t, 2024, y)

	for _, raw := range []string{"abc", "20", "10000"} {
		_, err := parseYear(raw)
		assert.Error(t, err, raw)
	}
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := NewJobsCLI("127.0.0.1:0")
	defer func() { _ = c.Close() }()

	_, err := c.Trigger(context.Background(), "reindex", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported job reindex")

	_, err = c.Trigger(context.Background(), "warmup", "19")
	require.Error(t, err)
}

func TestNilCLIIsRejected(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), "warmup", "")
	assert.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	assert.Error(t, err)
}
