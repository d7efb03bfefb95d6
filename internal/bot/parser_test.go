package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("!карма")
	assert.True(t, ok)
	assert.Equal(t, "карма", cmd)
	assert.Empty(t, args)

	cmd, args, ok = p.ParseCommand("/карма топ")
	assert.True(t, ok)
	assert.Equal(t, "карма", cmd)
	assert.Equal(t, []string{"топ"}, args)

	cmd, _, ok = p.ParseCommand(".КАРМА")
	assert.True(t, ok)
	assert.Equal(t, "карма", cmd)

	_, _, ok = p.ParseCommand("карма")
	assert.False(t, ok)

	_, _, ok = p.ParseCommand("!")
	assert.False(t, ok)

	_, _, ok = p.ParseCommand("")
	assert.False(t, ok)
}
