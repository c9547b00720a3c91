package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithoutRedis(t *testing.T) {
	a, err := New(Options{
		Logger:        zap.NewNop(),
		JWTSigningKey: "0123456789abcdef0123",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, a.Request(context.Background(), "a@example.com"), ErrSignInDisabled)
	_, err = a.Verify(context.Background(), "a@example.com", "code")
	assert.ErrorIs(t, err, ErrSignInDisabled)

	token, err := a.CreateTokenFromClaims(Claims{AccountID: "acct-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestTransport(t *testing.T) {
	a := testAuth()
	assert.Equal(t, transportLog, a.transport())

	a.Environment = EnvProduction
	assert.Equal(t, transportLog, a.transport())
}

func TestSignInComposer(t *testing.T) {
	compose := signInComposer(SignInOption{
		SiteName: "Visitation Book",
		Link: func(email, token string) string {
			return "https://example.com/login/" + email + "/" + token
		},
	})
	var buf bytes.Buffer
	require.NoError(t, compose(context.Background(), "ABCD1234", "a@example.com", "a@example.com", &buf))

	mail := buf.String()
	assert.Contains(t, mail, "Your Visitation Book sign in code")
	assert.Contains(t, mail, "ABCD1234")
	assert.True(t, strings.Contains(mail, "https://example.com/login/a@example.com/ABCD1234"))
}
