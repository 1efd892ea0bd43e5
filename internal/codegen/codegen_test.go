package codegen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	g := New(10 * time.Minute)

	for i := 0; i < 1000; i++ {
		code, expiresAt, err := g.Generate()
		require.NoError(t, err)

		assert.Len(t, code, CodeLen, "code isn't %d digits", CodeLen)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "non-numeric rune in code: %q", code)
		}
		assert.NotEqual(t, '0', rune(code[0]), "code isn't drawn from the 6 digit range")
		assert.True(t, expiresAt.After(time.Now()), "expiry isn't in the future")
	}
}

func TestGenerateExpiryWindow(t *testing.T) {
	g := New(10 * time.Minute)
	now := time.Now()

	_, expiresAt, err := g.Generate()
	require.NoError(t, err)

	assert.WithinDuration(t, now.Add(10*time.Minute), expiresAt, time.Second,
		"expiry doesn't match the configured TTL")
}
