package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	assert.Equal(t, "+3", Sign(3))
	assert.Equal(t, "-2", Sign(-2))
	assert.Equal(t, "±0", Sign(0))
}

func TestPluralizePoints(t *testing.T) {
	cases := map[int]string{
		0:   "очков",
		1:   "очко",
		2:   "очка",
		4:   "очка",
		5:   "очков",
		11:  "очков",
		12:  "очков",
		14:  "очков",
		21:  "очко",
		22:  "очка",
		25:  "очков",
		101: "очко",
		111: "очков",
		-1:  "очко",
		-3:  "очка",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralizePoints(n), "n=%d", n)
	}
}

func TestFormatKarma(t *testing.T) {
	assert.Equal(t, "+5 очков", FormatKarma(5))
	assert.Equal(t, "-1 очко", FormatKarma(-1))
	assert.Equal(t, "±0 очков", FormatKarma(0))
}
