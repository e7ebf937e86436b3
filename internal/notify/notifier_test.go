package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksJoinsLinesUnderLimit(t *testing.T) {
	out := chunks([]string{"a", "b", "c"}, 100)
	require.Len(t, out, 1)
	assert.Equal(t, "a\nb\nc", out[0])
}

func TestChunksSplitsLongBatches(t *testing.T) {
	line := strings.Repeat("x", 60)
	out := chunks([]string{line, line, line}, 100)
	require.Len(t, out, 3)
	for _, c := range out {
		assert.LessOrEqual(t, len(c), 100)
	}
}

func TestChunksEmpty(t *testing.T) {
	assert.Empty(t, chunks(nil, 100))
}

func TestMemoryRecords(t *testing.T) {
	m := &Memory{}
	m.Notify("one")
	m.Notify("two")
	m.Flush(t.Context())
	assert.Equal(t, []string{"one", "two"}, m.Messages)
	assert.Equal(t, 1, m.Flushes)
}
