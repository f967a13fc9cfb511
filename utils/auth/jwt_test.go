package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *JWTManager {
	return NewJWTManager(JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "tuition-api"})
}

func TestGenerateAndValidate(t *testing.T) {
	m := newManager()

	token, jti, err := m.GenerateAccessToken(model.TeacherPayer(12))
	require.NoError(t, err)
	assert.NotEmpty(t, jti)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)

	payer, err := claims.Payer()
	require.NoError(t, err)
	assert.Equal(t, model.TeacherPayer(12), payer)
}

func TestGenerateRejectsZeroIdentity(t *testing.T) {
	_, _, err := newManager().GenerateAccessToken(model.PayerIdentity{})
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	m := newManager()

	other := NewJWTManager(JWTConfig{Secret: "other-secret", Expiry: time.Hour, Issuer: "tuition-api"})
	token, _, err := other.GenerateAccessToken(model.StudentPayer(1))
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := newManager()
	expired.config.Expiry = -time.Minute
	token, _, err = expired.GenerateAccessToken(model.StudentPayer(1))
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign := NewJWTManager(JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "someone-else"})
	token, _, err = foreign.GenerateAccessToken(model.StudentPayer(1))
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsPayerRejectsUnknownRole(t *testing.T) {
	claims := &Claims{UserID: 3, Role: "guest", RegisteredClaims: jwt.RegisteredClaims{}}
	_, err := claims.Payer()
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
