package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckCredential(t *testing.T) {
	hash, err := HashCredential("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)
	assert.True(t, CheckCredential(hash, "s3cret-password"))
	assert.False(t, CheckCredential(hash, "wrong-password"))
	assert.False(t, CheckCredential(hash, ""))
}

func TestHashCredentialIsSalted(t *testing.T) {
	h1, err := HashCredential("s3cret-password")
	require.NoError(t, err)
	h2, err := HashCredential("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestGenerateUsername(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		username, err := GenerateUsername()
		require.NoError(t, err)
		require.Len(t, username, generatedUsernameLength)
		assert.NotEqual(t, byte('0'), username[0])
		for _, r := range username {
			assert.True(t, r >= '0' && r <= '9')
		}
		seen[username] = true
	}
	assert.Greater(t, len(seen), 1, "generated usernames must vary")
}

func TestGenerateCredential(t *testing.T) {
	c1, err := GenerateCredential()
	require.NoError(t, err)
	c2, err := GenerateCredential()
	require.NoError(t, err)
	require.Len(t, c1, generatedCredentialLength)
	assert.NotEqual(t, c1, c2)
}
