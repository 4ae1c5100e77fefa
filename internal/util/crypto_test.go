package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _ := GenerateToken()
		token2, _ := GenerateToken()
		assert.NotEqual(t, token1, token2)
	})
}

func TestRandomString(t *testing.T) {
	t.Run("respects length and alphabet", func(t *testing.T) {
		s := RandomString(18, Alnum)
		assert.Len(t, s, 18)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(Alnum, c))
		}
	})

	t.Run("lower alphabet stays lowercase", func(t *testing.T) {
		s := RandomString(64, LowerAlnum)
		assert.Equal(t, strings.ToLower(s), s)
	})
}

func TestHmacSHA256(t *testing.T) {
	t.Run("different secret produces different result", func(t *testing.T) {
		assert.NotEqual(t, HmacSHA256("secret1", "data"), HmacSHA256("secret2", "data"))
	})

	t.Run("produces expected HMAC", func(t *testing.T) {
		result := HmacSHA256("key", "The quick brown fox jumps over the lazy dog")
		assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", result)
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "def"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("hunter23", hash))
}

func TestValidation(t *testing.T) {
	t.Run("usernames", func(t *testing.T) {
		assert.True(t, IsValidUsername("maria_01"))
		assert.False(t, IsValidUsername("ab"))
		assert.False(t, IsValidUsername("has space"))
	})

	t.Run("base58 addresses", func(t *testing.T) {
		assert.True(t, IsBase58Address("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
		assert.False(t, IsBase58Address("0xdeadbeef"))
		assert.False(t, IsBase58Address("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1O"))
	})
}
