// ABOUTME: Tests for bcrypt password hashing
// ABOUTME: Covers round-trip, mismatch, and empty password handling

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "battery staple"), ErrInvalidCredential)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestCheckPassword_GarbageHash(t *testing.T) {
	assert.ErrorIs(t, CheckPassword("not-a-bcrypt-hash", "pw"), ErrInvalidCredential)
}
