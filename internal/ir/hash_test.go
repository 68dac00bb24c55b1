package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashKeyDeterminism(t *testing.T) {
	k1 := HashKey("status_unsigned")
	k2 := HashKey("status_unsigned")

	assert.Equal(t, k1, k2, "HashKey must be deterministic")
	assert.NotEqual(t, uint64(NoKey), k1)
}

func TestHashKeyDistinguishesNames(t *testing.T) {
	names := []string{"a", "b", "expression_0", "expression_1", "chunk_0", "A"}
	seen := make(map[uint64]string, len(names))
	for _, name := range names {
		key := HashKey(name)
		prev, dup := seen[key]
		assert.False(t, dup, "%q collides with %q", name, prev)
		seen[key] = name
	}
}

func TestHashKeyEmptyIsNoKey(t *testing.T) {
	assert.Equal(t, uint64(NoKey), HashKey(""))
}

func TestHashKeyNormalizesUnicode(t *testing.T) {
	// "é" as one code point vs "e" + combining acute accent
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	assert.Equal(t, HashKey(composed), HashKey(decomposed),
		"NFC-equivalent names must hash to the same key")
}

func TestTypedKeyHelpers(t *testing.T) {
	assert.Equal(t, StatusKey(HashKey("x")), StatusKeyOf("x"))
	assert.Equal(t, ExpressionKey(HashKey("x")), ExpressionKeyOf("x"))
	assert.Equal(t, ChunkKey(HashKey("x")), ChunkKeyOf("x"))
}
