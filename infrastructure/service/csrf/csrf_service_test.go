package csrf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "csrf-secret-csrf-secret-csrf-secret"

func TestNewService_RejectsWeakSecret(t *testing.T) {
	_, err := NewService("short")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestGenerateAndVerify(t *testing.T) {
	s, err := NewService(testSecret)
	require.NoError(t, err)

	token, err := s.Generate()
	require.NoError(t, err)
	assert.True(t, s.Verify(token))

	other, err := s.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestVerify_Rejects(t *testing.T) {
	s, err := NewService(testSecret)
	require.NoError(t, err)
	foreign, err := NewService("another-secret-another-secret-xxx")
	require.NoError(t, err)

	forged, err := foreign.Generate()
	require.NoError(t, err)

	token, err := s.Generate()
	require.NoError(t, err)
	nonce, _, _ := strings.Cut(token, ".")

	cases := map[string]string{
		"empty":         "",
		"no separator":  "abcdef",
		"empty nonce":   ".sig",
		"empty sig":     nonce + ".",
		"other secret":  forged,
		"tampered sig":  nonce + ".AAAA",
		"tampered once": "x" + token,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, s.Verify(value))
		})
	}
}

func TestDoubleSubmitValid(t *testing.T) {
	s, err := NewService(testSecret)
	require.NoError(t, err)
	token, err := s.Generate()
	require.NoError(t, err)
	second, err := s.Generate()
	require.NoError(t, err)

	assert.True(t, s.DoubleSubmitValid(token, token))
	assert.True(t, s.DoubleSubmitValid(token, " "+token+" "))

	assert.False(t, s.DoubleSubmitValid(token, ""), "missing header")
	assert.False(t, s.DoubleSubmitValid("", token), "missing cookie")
	assert.False(t, s.DoubleSubmitValid(token, second), "mismatch")
	assert.False(t, s.DoubleSubmitValid("planted.value", "planted.value"), "unsigned")
}
