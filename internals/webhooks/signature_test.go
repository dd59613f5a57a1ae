package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	require.Equal(t, "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"task_created"}`)
	sig := Sign("s3cret", body)
	require.True(t, Verify("s3cret", body, sig))
	assert.False(t, Verify("other", body, sig), "wrong secret verified")
	assert.False(t, Verify("s3cret", []byte(`{"event":"task_deleted"}`), sig), "tampered body verified")
	assert.False(t, Verify("s3cret", body, sig[len("sha256="):]), "signature without prefix verified")
}
