package channel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/domain/channel"
)

func TestParseCached_MatchesParse(t *testing.T) {
	c, err := channel.ParseCached("agent:output:a1")
	require.NoError(t, err)
	assert.Equal(t, "agent", c.Scope())
	assert.Equal(t, "output", c.Type())
	assert.Equal(t, "a1", c.ID())

	c2, err := channel.ParseCached("agent:output:a1")
	require.NoError(t, err)
	assert.Equal(t, c, c2)
}

func TestParseCached_RejectsInvalid(t *testing.T) {
	_, err := channel.ParseCached("bogus")
	assert.Error(t, err)
}
