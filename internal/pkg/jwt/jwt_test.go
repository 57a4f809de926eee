package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("ingest-bot", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "ingest-bot", claims.Subject)

	_, err = ParseToken(token, []byte("other-secret"))
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("bot", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}

func TestGenerateRequiresSubject(t *testing.T) {
	_, err := GenerateToken("", []byte("s"), time.Hour)
	require.Error(t, err)
}
