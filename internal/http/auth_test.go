package http

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_Parse(t *testing.T) {
	auth := NewAuthenticator(testSecret, "/login")

	s, err := auth.Parse(signToken(t, "user-1", "sid-1"))
	require.NoError(t, err)
	assert.Equal(t, "sid-1", s.Key)
	assert.Equal(t, "user-1", s.User.ID)
	assert.Equal(t, "asha@example.com", s.User.Email)
	assert.Equal(t, "9999999999", s.User.Phone)
}

func TestAuthenticator_SessionFallsBackToSubject(t *testing.T) {
	auth := NewAuthenticator(testSecret, "/login")

	s, err := auth.Parse(signToken(t, "user-7", ""))

	require.NoError(t, err)
	assert.Equal(t, "user-7", s.Key)
}

func TestAuthenticator_Rejects(t *testing.T) {
	auth := NewAuthenticator(testSecret, "/login")

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{SessionID: "sid-1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"no subject", noSubject},
		{"unexpected algorithm", wrongAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Parse(tt.token)
			assert.Error(t, err)
		})
	}
	_, err = auth.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticator_LoginURL(t *testing.T) {
	auth := NewAuthenticator(testSecret, "/login")

	assert.Equal(t, "/login?returnTo=%2Fcheckout%3Fstep%3Dreview", auth.LoginURL("/checkout?step=review"))
}
