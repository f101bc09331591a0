// Package authkey holds the shared 256-bit authentication key used to
// bootstrap an SCP03 secure channel, and its password-based derivation.
package authkey

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Length is the total size of an AuthKey: a 16-byte K-ENC followed by a
	// 16-byte K-MAC.
	Length = 32
	// HalfLength is the size of each half (K-ENC, K-MAC).
	HalfLength = Length / 2

	pbkdf2Iterations = 10000
	pbkdf2Salt       = "Yubico"
)

// AuthKey is the 32-byte shared secret: K-ENC || K-MAC. Sensitive — callers
// must call Zero when the key is no longer needed.
type AuthKey struct {
	bytes [Length]byte
}

// FromHalves builds an AuthKey from its two 16-byte halves.
func FromHalves(encKey, macKey []byte) (*AuthKey, error) {
	if len(encKey) != HalfLength || len(macKey) != HalfLength {
		return nil, fmt.Errorf("authkey: each half must be %d bytes, got enc=%d mac=%d", HalfLength, len(encKey), len(macKey))
	}
	k := &AuthKey{}
	copy(k.bytes[:HalfLength], encKey)
	copy(k.bytes[HalfLength:], macKey)
	return k, nil
}

// FromPassword derives an AuthKey from a passphrase via PBKDF2-HMAC-SHA256,
// with the fixed salt and iteration count the device expects.
func FromPassword(password string) *AuthKey {
	derived := pbkdf2.Key([]byte(password), []byte(pbkdf2Salt), pbkdf2Iterations, Length, sha256.New)
	k := &AuthKey{}
	copy(k.bytes[:], derived)
	for i := range derived {
		derived[i] = 0
	}
	return k
}

// EncKey returns the 16-byte K-ENC half.
func (k *AuthKey) EncKey() []byte { return k.bytes[:HalfLength] }

// MacKey returns the 16-byte K-MAC half.
func (k *AuthKey) MacKey() []byte { return k.bytes[HalfLength:] }

// Zero wipes the key material in place.
func (k *AuthKey) Zero() {
	for i := range k.bytes {
		k.bytes[i] = 0
	}
}
