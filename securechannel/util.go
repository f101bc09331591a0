package securechannel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
)

// pad adds ISO/IEC 7816-4 padding: a 0x80 byte followed by zero bytes up to
// the next block boundary. Unlike naive padding, a full extra block is
// always appended when src is already block-aligned — this distinguishes a
// message that ends exactly on a block boundary from one that was truncated.
func pad(src []byte) []byte {
	padding := aes.BlockSize - len(src)%aes.BlockSize
	out := make([]byte, len(src), len(src)+padding)
	copy(out, src)
	out = append(out, 0x80)
	out = append(out, bytes.Repeat([]byte{0x00}, padding-1)...)
	return out
}

// unpad strips ISO/IEC 7816-4 padding, scanning back from the end for the
// 0x80 marker byte.
func unpad(src []byte) ([]byte, error) {
	for i := len(src) - 1; i >= 0; i-- {
		switch src[i] {
		case 0x00:
			continue
		case 0x80:
			return src[:i], nil
		default:
			return nil, newError(KindProtocol, "malformed ISO 7816-4 padding")
		}
	}
	return nil, newError(KindProtocol, "malformed ISO 7816-4 padding")
}

// computeICV derives the CBC initial chaining vector for the given counter:
// AES-ECB-encrypt, under encKey, a 16-byte block whose last 4 bytes carry
// counter big-endian and whose remaining 12 bytes are zero. Used
// identically for both the command and response directions — see the
// resolution of the ICV open question in the design notes.
func computeICV(encKey []byte, counter uint32) ([16]byte, error) {
	var block [16]byte
	block[12] = byte(counter >> 24)
	block[13] = byte(counter >> 16)
	block[14] = byte(counter >> 8)
	block[15] = byte(counter)

	c, err := aes.NewCipher(encKey)
	if err != nil {
		return block, err
	}
	var icv [16]byte
	c.Encrypt(icv[:], block[:])
	return icv, nil
}

func cbcEncrypt(key, iv []byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func cbcDecrypt(key, iv []byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, newError(KindProtocol, "ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out)
}
