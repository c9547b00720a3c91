package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jordan Lee", (&Account{FullName: "Jordan Lee", Email: "jordan@example.com"}).DisplayName())
	assert.Equal(t, "jordan@example.com", (&Account{Email: "jordan@example.com"}).DisplayName())

	var missing *Account
	assert.Equal(t, "", missing.DisplayName())
}

func TestLoginRequestValidation(t *testing.T) {
	assert.Error(t, validate.Struct(&LoginRequest{Email: "not-an-email"}))
	assert.NoError(t, validate.Struct(&LoginRequest{Email: "jordan@example.com"}))
}
