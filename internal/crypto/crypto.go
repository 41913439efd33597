// Package crypto seals IPC frames with NaCl secretbox under a key
// stretched from the shared daemon token.
//
// A sealed frame is the random nonce followed by the box:
//
//	nonce (24) | secretbox(plaintext) (len+16)
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length of a secretbox key.
const KeySize = 32

const nonceLen = 24

// Overhead is the number of bytes Seal adds to a plaintext.
const Overhead = nonceLen + secretbox.Overhead

// Key is a symmetric secretbox key. A nil *Key means frames travel in
// the clear.
type Key [KeySize]byte

var (
	// ErrDecrypt means the box failed authentication; in practice the
	// two ends hold different tokens.
	ErrDecrypt = errors.New("crypto: cannot open frame (token mismatch?)")

	// ErrShort is returned by Open for input smaller than Overhead.
	ErrShort = errors.New("crypto: sealed frame truncated")
)

// salt domain-separates the IPC key from anything else derived from the
// same token.
var salt = []byte("clipcue/ipc/1")

// DeriveKey stretches token into a Key with HKDF-SHA256.
func DeriveKey(token string) (*Key, error) {
	var k Key
	r := hkdf.New(sha256.New, []byte(token), salt, nil)
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return &k, nil
}

// ForToken is DeriveKey for a possibly empty token; an empty token yields
// a nil key and frames stay in the clear.
func ForToken(token string) (*Key, error) {
	if token == "" {
		return nil, nil
	}
	return DeriveKey(token)
}

// Seal boxes plaintext under a fresh random nonce.
func (k *Key) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	out := make([]byte, nonceLen, len(plaintext)+Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, (*[KeySize]byte)(k)), nil
}

// Open reverses Seal.
func (k *Key) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrShort, len(sealed))
	}
	nonce := (*[nonceLen]byte)(sealed[:nonceLen])
	plain, ok := secretbox.Open(nil, sealed[nonceLen:], nonce, (*[KeySize]byte)(k))
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
