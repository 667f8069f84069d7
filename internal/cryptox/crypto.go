// Package cryptox derives the credential key and hashes account credentials.
//
// Credentials are never stored in the clear: the account table keeps a keyed
// BLAKE3 digest of name||0x00||credential under a key derived from the
// server's credential secret with Argon2id.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of derived keys and credential digests.
const KeySize = 32

// DeriveKey stretches secret into a KeySize key.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Hasher computes credential digests.
type Hasher struct {
	key [KeySize]byte
}

// NewHasher derives the hashing key from secret and salt. Both must be
// stable across restarts or existing credentials stop verifying.
func NewHasher(secret, salt []byte) (*Hasher, error) {
	if len(secret) == 0 {
		return nil, errors.New("credential secret is empty")
	}
	h := &Hasher{}
	copy(h.key[:], DeriveKey(secret, salt))
	return h, nil
}

// Hash returns the digest for name's credential.
func (h *Hasher) Hash(name, credential string) []byte {
	// NewKeyed only fails for keys of the wrong size
	d, _ := blake3.NewKeyed(h.key[:])
	d.Write([]byte(name))
	d.Write([]byte{0})
	d.Write([]byte(credential))
	return d.Sum(nil)
}

// Verify reports in constant time whether credential matches digest.
func (h *Hasher) Verify(name, credential string, digest []byte) bool {
	return subtle.ConstantTimeCompare(h.Hash(name, credential), digest) == 1
}
