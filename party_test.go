package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCommit(t *testing.T) {
	hash := hashCommit("they will move abroad", "s3cret")

	require.Len(t, hash, 64)
	assert.Equal(t, strings.ToLower(hash), hash)

	// Same input, same digest.
	assert.Equal(t, hash, hashCommit("they will move abroad", "s3cret"))

	// Digest binds both text and salt.
	assert.NotEqual(t, hash, hashCommit("they will move abroad", "other"))
	assert.NotEqual(t, hash, hashCommit("they will stay put", "s3cret"))
}

func TestVerifyCommit(t *testing.T) {
	text, salt := "P2 will adopt a dog", "abc123"
	hash := hashCommit(text, salt)

	assert.True(t, verifyCommit(text, salt, hash))
	assert.False(t, verifyCommit(text+"!", salt, hash))
	assert.False(t, verifyCommit(text, salt+"x", hash))
	assert.False(t, verifyCommit(text, salt, strings.ToUpper(hash)))
}

func TestRandomPartyCode(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code := randomPartyCode()
		require.Len(t, code, codeLength)

		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}

		seen[code] = true
	}

	// 32^6 codes; a hundred draws colliding down to a handful would mean
	// broken entropy.
	assert.Greater(t, len(seen), 90)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Alice", cleanName("  Alice  "))
	assert.Equal(t, strings.Repeat("x", maxNameLength), cleanName(strings.Repeat("x", 100)))
	assert.Equal(t, "", cleanName("   "))

	// Truncation counts characters, not bytes: a multibyte name must never
	// be cut mid-rune.
	got := cleanName("a" + strings.Repeat("日", maxNameLength))
	assert.Equal(t, "a"+strings.Repeat("日", maxNameLength-1), got)
	assert.Equal(t, maxNameLength, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestCreateID(t *testing.T) {
	id := createID("pred")
	assert.True(t, strings.HasPrefix(id, "pred_"))
	assert.NotEqual(t, id, createID("pred"))
}
