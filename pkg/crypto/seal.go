// Package crypto seals small local snapshots with a passphrase.
//
// A sealed blob is magic(4) + version(4) + salt(32) + nonce(12) + ciphertext.
// The key is derived with Argon2id and cached per salt, so a process that
// rewrites the same file many times pays for the derivation once.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	Magic         = "AAFS"
	FormatVersion = 1

	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32

	saltSize   = 32
	nonceSize  = 12
	headerSize = 4 + 4 + saltSize + nonceSize
)

var (
	ErrNotSealed          = errors.New("data is not a sealed snapshot")
	ErrUnsupportedVersion = errors.New("unsupported sealed snapshot version")
	ErrOpenFailed         = errors.New("unseal failed: wrong passphrase or corrupted data")
	ErrEmptyPassphrase    = errors.New("passphrase is empty")
)

// Sealer encrypts and decrypts snapshots with AES-256-GCM.
type Sealer struct {
	passphrase string

	mu   sync.Mutex
	salt []byte
	aead cipher.AEAD
}

// NewSealer creates a sealer for passphrase.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &Sealer{passphrase: passphrase}, nil
}

// aeadFor returns the cipher for salt, deriving it only when salt changes.
func (s *Sealer) aeadFor(salt []byte) (cipher.AEAD, error) {
	if s.aead != nil && bytes.Equal(s.salt, salt) {
		return s.aead, nil
	}

	key := argon2.IDKey([]byte(s.passphrase), salt, argonTime, argonMemory, argonThreads, keyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	s.salt = append([]byte(nil), salt...)
	s.aead = gcm
	return gcm, nil
}

// Seal encrypts plaintext. Each call uses a fresh nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	salt := s.salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
	}
	gcm, err := s.aeadFor(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+gcm.Overhead())
	copy(out[0:4], Magic)
	binary.LittleEndian.PutUint32(out[4:8], FormatVersion)
	copy(out[8:8+saltSize], salt)
	copy(out[8+saltSize:headerSize], nonce)
	aad := append([]byte(nil), out[:8]...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	if !IsSealed(data) || len(data) < headerSize {
		return nil, ErrNotSealed
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gcm, err := s.aeadFor(data[8 : 8+saltSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, data[8+saltSize:headerSize], data[headerSize:], data[:8])
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the sealed snapshot magic.
func IsSealed(data []byte) bool {
	return len(data) >= 4 && string(data[0:4]) == Magic
}
