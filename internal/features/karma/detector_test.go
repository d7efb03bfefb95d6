package karma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVote_Upvotes(t *testing.T) {
	cases := []string{"+", "++", "+1", "👍", "👍🏽", ":+1:", ":thumbsup:", "  +1  "}
	for _, text := range cases {
		value, ok := ParseVote(text)
		assert.True(t, ok, "должен распознаться как голос: %q", text)
		assert.Equal(t, 1, value, "text=%q", text)
	}
}

func TestParseVote_Downvotes(t *testing.T) {
	cases := []string{"-", "--", "-1", "👎", "👎🏿", ":-1:", ":thumbsdown:"}
	for _, text := range cases {
		value, ok := ParseVote(text)
		assert.True(t, ok, "должен распознаться как голос: %q", text)
		assert.Equal(t, -1, value, "text=%q", text)
	}
}

func TestParseVote_NotAVote(t *testing.T) {
	cases := []string{"", "+2", "-2", "+++", "---", "привет", "+1 спасибо", "1", "👍👍"}
	for _, text := range cases {
		_, ok := ParseVote(text)
		assert.False(t, ok, "не должен распознаться как голос: %q", text)
	}
}

func TestIsRetract(t *testing.T) {
	assert.True(t, IsRetract("отмена"))
	assert.True(t, IsRetract("Отмена"))
	assert.True(t, IsRetract("ОТМЕНА!"))
	assert.True(t, IsRetract("  отмена.  "))

	assert.False(t, IsRetract("отменить"))
	assert.False(t, IsRetract("отмена голоса"))
	assert.False(t, IsRetract(""))
}
