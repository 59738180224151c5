package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("s3cret", time.Hour)

	token, err := m.GenerateJWT("u-1", "ops@example.com", "acme")
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "acme", claims.ClientID)
	assert.Equal(t, "u-1", claims.Subject)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenManager("one", time.Hour).GenerateJWT("u-1", "a@b.c", "")
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).ValidateJWT(token)

	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewTokenManager("s3cret", time.Hour)
	m.ttl = -time.Minute

	token, err := m.GenerateJWT("u-1", "a@b.c", "")
	require.NoError(t, err)

	_, err = m.ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewTokenManager("s3cret", time.Hour).ValidateJWT("not-a-token")

	assert.Error(t, err)
}
