package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSha256Hasher_Hash(t *testing.T) {
	h := New()

	assert.Equal(t, `"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"`, h.Hash(nil))
	assert.Equal(t, h.Hash([]byte("transcript")), h.Hash([]byte("transcript")))
	assert.NotEqual(t, h.Hash([]byte("a")), h.Hash([]byte("b")))
}
