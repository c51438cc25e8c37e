package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndVerify(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher()

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	require.True(t, hasher.Verify(hash, "correct horse battery staple"))
	require.False(t, hasher.Verify(hash, "wrong password"))
}

func TestPasswordHashIsSalted(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher()

	first, err := hasher.Hash("same-password")
	require.NoError(t, err)
	second, err := hasher.Hash("same-password")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.True(t, hasher.Verify(first, "same-password"))
	require.True(t, hasher.Verify(second, "same-password"))
}

func TestPasswordVerifyMalformedHash(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not a hash", "plaintext"},
		{"wrong segment count", "$argon2id$v=19$m=65536"},
		{"bad parameters", "$argon2id$v=19$bogus$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
		{"bad hash encoding", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.False(t, hasher.Verify(tt.hash, "any-password"))
		})
	}
}
