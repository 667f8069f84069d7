package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(32)
	require.NoError(t, err)
	b, err := RandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestHasher(t *testing.T) {
	h, err := NewHasher([]byte("server-secret"), []byte("linkledger"))
	require.NoError(t, err)

	d := h.Hash("alice", "wonderland")
	assert.Len(t, d, KeySize)

	assert.True(t, h.Verify("alice", "wonderland", d))
	assert.False(t, h.Verify("alice", "wonderland!", d))
	assert.False(t, h.Verify("bob", "wonderland", d), "digest is bound to the account name")
	assert.False(t, h.Verify("alice", "wonderland", d[:16]))

	// name/credential boundary is unambiguous
	assert.NotEqual(t, h.Hash("ab", "c"), h.Hash("a", "bc"))
}

func TestHasher_KeyDependsOnSecret(t *testing.T) {
	h1, err := NewHasher([]byte("one"), []byte("salt"))
	require.NoError(t, err)
	h2, err := NewHasher([]byte("two"), []byte("salt"))
	require.NoError(t, err)

	assert.NotEqual(t, h1.Hash("alice", "pw"), h2.Hash("alice", "pw"))
}

func TestNewHasher_EmptySecret(t *testing.T) {
	_, err := NewHasher(nil, []byte("salt"))
	require.Error(t, err)
}
