package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher()

	hash, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	assert.True(t, h.Verify(hash, "correct horse battery staple"))
	assert.False(t, h.Verify(hash, "wrong password"))
}
