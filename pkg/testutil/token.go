package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SignStaffToken mints an HMAC JWT in the shape the auth middleware expects:
// subject is the actor id, kind and capabilities are custom claims.
func SignStaffToken(t *testing.T, signingKey []byte, actorID, kind string, capabilities ...string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":          actorID,
		"kind":         kind,
		"capabilities": capabilities,
		"exp":          time.Now().Add(time.Hour).Unix(),
		"iat":          time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err, "failed to sign test token")
	return token
}
