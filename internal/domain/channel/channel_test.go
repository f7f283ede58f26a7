package channel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/domain/channel"
)

func TestParse_ValidForms(t *testing.T) {
	cases := []struct {
		raw   string
		scope string
		typ   string
		id    string
	}{
		{"agent:output:a1", "agent", "output", "a1"},
		{"workspace:conflicts:w1", "workspace", "conflicts", "w1"},
		{"user:mail:u1", "user", "mail", "u1"},
		{"system:health", "system", "health", ""},
		{"system:dcg", "system", "dcg", ""},
	}

	for _, tc := range cases {
		c, err := channel.Parse(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.scope, c.Scope())
		assert.Equal(t, tc.typ, c.Type())
		assert.Equal(t, tc.id, c.ID())
		assert.Equal(t, tc.raw, c.String())
	}
}

func TestParse_InvalidForms(t *testing.T) {
	cases := []string{
		"",
		"bogus",
		"agent",
		"agent:Output:a1",   // uppercase type segment
		"system:health:w1",  // system channels never carry an id
		"workspace::w1",     // empty type
		"agent:out put:a1",  // space in type
	}

	for _, raw := range cases {
		_, err := channel.Parse(raw)
		assert.Error(t, err, raw)
		var invalid *channel.ErrInvalidChannel
		assert.ErrorAs(t, err, &invalid, raw)
	}
}

func TestAckRequired(t *testing.T) {
	assert.True(t, channel.MustParse("workspace:conflicts:w1").AckRequired())
	assert.True(t, channel.MustParse("workspace:reservations:w1").AckRequired())
	assert.True(t, channel.MustParse("user:notifications:u1").AckRequired())
	assert.False(t, channel.MustParse("agent:output:a1").AckRequired())
}

func TestAckRequired_Toggle(t *testing.T) {
	c := channel.MustParse("agent:output:a1")
	require.False(t, c.AckRequired())

	channel.SetAckRequired("agent:output", true)
	defer channel.SetAckRequired("agent:output", false)

	assert.True(t, c.AckRequired())
}

func TestPolicyFor_KnownAndDefault(t *testing.T) {
	p := channel.PolicyFor("agent:output")
	assert.Equal(t, 10_000, p.Capacity)

	def := channel.PolicyFor("workspace:git")
	assert.Equal(t, 1_000, def.Capacity)
	assert.Equal(t, channel.PolicyFor("totally:unknown"), def)
}

func TestPrefix(t *testing.T) {
	c := channel.MustParse("agent:output:a1")
	assert.Equal(t, "agent:output", c.Prefix())
}
