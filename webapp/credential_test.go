package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHash(t *testing.T) {
	hash, err := generatePasswordHash("pw1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)
	assert.NotContains(t, hash, "pw1")

	ok, err := comparePasswordHash("pw1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = comparePasswordHash("pw2", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	// salted
	other, err := generatePasswordHash("pw1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestComparePasswordHashMalformed(t *testing.T) {
	ok, err := comparePasswordHash("pw1", "not-a-bcrypt-hash")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, validatePassword("pw1"))
	assert.NoError(t, validatePassword(strings.Repeat("a", maxPasswordBytes)))

	for _, pw := range []string{"", strings.Repeat("a", maxPasswordBytes+1)} {
		err := validatePassword(pw)
		_, ok := isValidationError(err)
		assert.True(t, ok, "len=%d", len(pw))
	}
}
