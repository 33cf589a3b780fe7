package appletime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkID_Deterministic(t *testing.T) {
	text := "[Me 3:04 PM] hello\n[Alice 3:05 PM] hi"
	assert.Equal(t, ChunkID(text), ChunkID(text))
	assert.NotEqual(t, ChunkID(text), ChunkID(text+"!"))
	assert.Len(t, ChunkID(text), 64)
}

func TestPointUUID_Deterministic(t *testing.T) {
	hash := ChunkID("some text")
	assert.Equal(t, PointUUID(hash), PointUUID(hash))
	assert.Equal(t, 5, int(PointUUID(hash).Version()))
}
