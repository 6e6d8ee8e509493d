package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeStats(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		added, deleted := changeStats("a\nb\n", "a\nb\n")
		assert.Equal(t, 0, added)
		assert.Equal(t, 0, deleted)
	})

	t.Run("line added", func(t *testing.T) {
		added, deleted := changeStats("a\nb\n", "a\nb\nc\n")
		assert.Equal(t, 1, added)
		assert.Equal(t, 0, deleted)
	})

	t.Run("line replaced", func(t *testing.T) {
		added, deleted := changeStats("a\nb\nc\n", "a\nX\nc\n")
		assert.Equal(t, 1, added)
		assert.Equal(t, 1, deleted)
	})

	t.Run("missing trailing newline still counts", func(t *testing.T) {
		added, deleted := changeStats("", "no newline")
		assert.Equal(t, 1, added)
		assert.Equal(t, 0, deleted)
	})
}

func TestChangeSummary(t *testing.T) {
	assert.Empty(t, changeSummary("same\n", "same\n"))
	assert.Equal(t, " (+2 -0)", changeSummary("a\n", "a\nb\nc\n"))
	assert.Equal(t, " (+1 -1)", changeSummary("old\n", "new\n"))
}
