// Package kdf implements the GlobalPlatform SCP03 key derivation function
// (GPC_SPE_014 §6), specialized to the single-block, AES-128 case used by
// the rest of this module: one CMAC-AES-128 invocation per derived value,
// with output bit length fixed at 0x0080 (128 bits) and counter fixed at 1.
package kdf

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/enceve/crypto/cmac"
)

// Size is the number of bytes produced by Derive (one AES block).
const Size = 16

// Label bytes for the derivation constant position of the KDF data block.
const (
	LabelCardCryptogram byte = 0x00
	LabelHostCryptogram byte = 0x01
	LabelEncKey         byte = 0x04
	LabelMacKey         byte = 0x06
	LabelRMacKey        byte = 0x07
)

// Derive fills out[:Size] with the SCP03 KDF output for the given parentKey,
// label and 16-byte context (host challenge || card challenge). parentKey
// must be a 16-byte AES-128 key. The data block layout is:
//
//	[0x00 x11, label, 0x00, outputBitLen_be16, 0x01] || context
//
// i.e. 11 zero bytes, the one-byte derivation constant, a separator byte, the
// big-endian output bit length (always 0x0080 here), a one-block counter
// byte, and the 16-byte context — CMAC-AES-128'd under parentKey.
func Derive(parentKey []byte, label byte, context [16]byte, out *[Size]byte) error {
	if len(parentKey) != Size {
		return fmt.Errorf("kdf: parent key must be %d bytes, got %d", Size, len(parentKey))
	}

	var block [16 + 16]byte
	block[11] = label
	block[12] = 0x00
	binary.BigEndian.PutUint16(block[13:15], 128)
	block[15] = 0x01
	copy(block[16:], context[:])

	cipher, err := aes.NewCipher(parentKey)
	if err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	mac, err := cmac.New(cipher)
	if err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	if _, err := mac.Write(block[:]); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}

	sum := mac.Sum(nil)
	copy(out[:], sum)
	return nil
}

// Derive8 derives a value and returns only its first 8 bytes — the shape
// used for the host and card cryptograms.
func Derive8(parentKey []byte, label byte, context [16]byte) ([8]byte, error) {
	var full [Size]byte
	var out [8]byte
	if err := Derive(parentKey, label, context, &full); err != nil {
		return out, err
	}
	copy(out[:], full[:8])
	return out, nil
}
