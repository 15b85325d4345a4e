package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Email string `json:"email"`
}

func decode(body string) (payload, error) {
	var p payload
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSON(httptest.NewRecorder(), r, &p)
	return p, err
}

func TestDecodeJSON(t *testing.T) {
	p, err := decode(`{"email":"a@b.com"}`)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", p.Email)

	_, err = decode(``)
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = decode(`{"email":"a@b.com","admin":true}`)
	assert.Error(t, err)

	_, err = decode(`{"email":"a@b.com"}{"email":"c@d.com"}`)
	assert.Error(t, err)

	_, err = decode(`{"email":`)
	assert.Error(t, err)
}

func TestValidateJWT(t *testing.T) {
	assert.True(t, ValidateJWT("a.b.c"))
	assert.False(t, ValidateJWT(""))
	assert.False(t, ValidateJWT("a.b"))
	assert.False(t, ValidateJWT("..c"))
}

func TestValidateRequired(t *testing.T) {
	assert.True(t, ValidateRequired("x"))
	assert.False(t, ValidateRequired("   "))
}
