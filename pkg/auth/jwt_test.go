package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	svc := NewHMACService("secret", "therapy-api")

	token, err := svc.GenerateAccessToken("staff-1", "Front desk", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, "Front desk", claims.Name)
}

func TestRejectsBadTokens(t *testing.T) {
	svc := NewHMACService("secret", "therapy-api")

	expired, err := svc.GenerateAccessToken("staff-1", "", -time.Minute)
	require.NoError(t, err)

	foreign, err := NewHMACService("other-secret", "therapy-api").GenerateAccessToken("staff-1", "", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewHMACService("secret", "someone-else").GenerateAccessToken("staff-1", "", time.Hour)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "staff-1", "iss": "therapy-api"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"expired":      expired,
		"foreign key":  foreign,
		"wrong issuer": wrongIssuer,
		"alg none":     unsigned,
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
