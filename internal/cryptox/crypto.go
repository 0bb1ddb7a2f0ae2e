// Package cryptox implements the chunk codec: AES-256-GCM sealing of a single
// chunk with a fresh random nonce, laid out as
//
//	[nonce:16][auth tag:16][ciphertext]
//
// and the passphrase based derivation of the codec key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// NonceSize is the per-chunk random nonce length.
	NonceSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// KeySize is the AES-256 key length.
	KeySize = 32
	// Overhead is the number of bytes a sealed chunk adds to its plaintext.
	Overhead = NonceSize + TagSize
)

// DeriveChunkKey stretches a passphrase into a 32-byte AES-256 key with argon2id.
// The same passphrase and salt always produce the same key.
func DeriveChunkKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Codec seals and opens chunks with one key. It holds no per-call state and is
// safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec for a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("chunk key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plain under a freshly generated nonce.
func (c *Codec) Encrypt(plain []byte) []byte {
	return c.seal(common.GenerateRandByteArray(NonceSize), plain)
}

func (c *Codec) seal(nonce, plain []byte) []byte {
	out := make([]byte, Overhead, Overhead+len(plain))
	copy(out, nonce)

	// Seal appends ciphertext||tag; move the tag in front of the ciphertext.
	sealed := c.aead.Seal(nil, nonce, plain, nil)
	ctLen := len(sealed) - TagSize
	copy(out[NonceSize:Overhead], sealed[ctLen:])
	return append(out, sealed[:ctLen]...)
}

// Decrypt opens a sealed chunk. Any truncation or tampering of the nonce, tag
// or ciphertext yields common.ErrChunkIntegrity.
func (c *Codec) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, fmt.Errorf("%w: payload of %d bytes is shorter than header", common.ErrChunkIntegrity, len(sealed))
	}
	nonce := sealed[:NonceSize]
	tag := sealed[NonceSize:Overhead]
	ct := sealed[Overhead:]

	buf := make([]byte, 0, len(ct)+TagSize)
	buf = append(buf, ct...)
	buf = append(buf, tag...)

	plain, err := c.aead.Open(buf[:0], nonce, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrChunkIntegrity, err)
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}
