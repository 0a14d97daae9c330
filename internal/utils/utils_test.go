package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}

	_, err := NewNumericCode(0)
	assert.Error(t, err)
}

func TestEmailDigestNormalizes(t *testing.T) {
	key := []byte("digest-key")
	a, err := EmailDigest(key, "  A@Example.com ")
	require.NoError(t, err)
	b, err := EmailDigest(key, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := EmailDigest([]byte("other-key"), "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = EmailDigest(make([]byte, 65), "a@example.com")
	assert.Error(t, err)
}

func TestSessionTokensRoundTrip(t *testing.T) {
	tokens := NewSessionTokens("0123456789abcdef0123456789abcdef", time.Hour)

	signed, exp, err := tokens.Sign("7b0e2f6a-3c1d-4a8e-9f21-5d6c7b8a9e01")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "7b0e2f6a-3c1d-4a8e-9f21-5d6c7b8a9e01", sub)
}

func TestSessionTokensRejectsForeignAndExpired(t *testing.T) {
	tokens := NewSessionTokens("0123456789abcdef0123456789abcdef", time.Hour)
	other := NewSessionTokens("ffffffffffffffffffffffffffffffff", time.Hour)

	signed, _, err := other.Sign("s1")
	require.NoError(t, err)
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)

	past := time.Now().Add(-2 * time.Hour)
	tokens.now = func() time.Time { return past }
	old, _, err := tokens.Sign("s1")
	require.NoError(t, err)
	tokens.now = time.Now
	_, err = tokens.Parse(old)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)

	_, err = tokens.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSessionToken)
}
