// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secrets stores provider API keys encrypted at rest.
//
// Keys are encrypted with AES-256-GCM. The cipher key is derived from a
// randomly generated master secret via PBKDF2-SHA-256 with a per-store
// salt. Both the master secret and the salt live next to the encrypted
// secrets with owner-only permissions.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Robdel12/DraftPatch/internal/util"
	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// encryptedPrefix marks a stored value as encrypted (format: ENC:base64(nonce|ciphertext|tag)).
const encryptedPrefix = "ENC:"

// nonceSize is the size of the AES-GCM nonce (12 bytes / 96 bits).
const nonceSize = 12

// keySize is the size of the AES-256 key (32 bytes / 256 bits).
const keySize = 32

// saltSize is the size of the PBKDF2 salt (32 bytes).
const saltSize = 32

// pbkdf2Iterations is the PBKDF2-SHA-256 iteration count.
// OWASP 2023 recommends 600,000+ iterations for adequate brute-force resistance.
const pbkdf2Iterations = 600000

const (
	masterFileName = "master.key"
	saltFileName   = "master.salt"
	secretExt      = ".secret"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSecretNotFound indicates no secret is stored under the requested name.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrInvalidName indicates the secret name contains unsupported characters.
	ErrInvalidName = errors.New("invalid secret name")
	// ErrDecryptionFailed indicates decryption failed (wrong key or tampered data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// STORE
// =============================================================================

// Store persists named secrets encrypted under a directory.
type Store struct {
	mu     sync.RWMutex
	dir    string
	cipher cipher.AEAD
}

// DefaultDir returns the default secrets directory (~/.draftpatch/secrets).
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".draftpatch", "secrets"), nil
}

// Open opens the secret store rooted at dir, creating the directory and
// master key material on first use.
func Open(dir string) (*Store, error) {
	// SECURITY: Restrict the store directory to the owner.
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secrets directory: %w", err)
	}

	master, err := loadOrCreateMaterial(filepath.Join(dir, masterFileName), keySize)
	if err != nil {
		return nil, err
	}
	// SECURITY: Zero key material to prevent memory disclosure.
	defer zeroBytes(master)

	salt, err := loadOrCreateMaterial(filepath.Join(dir, saltFileName), saltSize)
	if err != nil {
		return nil, err
	}

	key := deriveKey(master, salt)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	return &Store{dir: dir, cipher: gcm}, nil
}

// Save encrypts value and stores it under name, replacing any existing secret.
func (s *Store) Save(name, value string) error {
	path, err := s.secretPath(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := s.encrypt([]byte(value))
	if err != nil {
		return err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash.
	if err := util.AtomicWriteFileWithDir(path, []byte(encoded), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write secret %q: %w", name, err)
	}
	return nil
}

// Load decrypts and returns the secret stored under name.
// Returns ErrSecretNotFound when no secret is stored under that name.
func (s *Store) Load(name string) (string, error) {
	path, err := s.secretPath(name)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read secret %q: %w", name, err)
	}

	plaintext, err := s.decrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("secret %q: %w", name, err)
	}
	return string(plaintext), nil
}

// Delete removes the secret stored under name. Deleting a missing secret
// is not an error.
func (s *Store) Delete(name string) error {
	path, err := s.secretPath(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete secret %q: %w", name, err)
	}
	return nil
}

// Has reports whether a secret is stored under name.
func (s *Store) Has(name string) bool {
	path, err := s.secretPath(name)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// List returns the names of all stored secrets in directory order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), secretExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), secretExt))
	}
	return names, nil
}

// =============================================================================
// ENCRYPTION
// =============================================================================

// encrypt seals plaintext and returns ENC:base64(nonce || ciphertext || tag).
func (s *Store) encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := s.cipher.Seal(nonce, nonce, plaintext, nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt opens a value produced by encrypt.
func (s *Store) decrypt(value string) ([]byte, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return nil, ErrDecryptionFailed
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(data) < nonceSize {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.cipher.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// deriveKey derives the AES key from the master secret via PBKDF2-SHA-256.
func deriveKey(master, salt []byte) []byte {
	return pbkdf2.Key(master, salt, pbkdf2Iterations, keySize, sha256.New)
}

// =============================================================================
// HELPERS
// =============================================================================

// secretPath validates name and returns the file path for it.
// SECURITY: Names are restricted to a safe character set to prevent
// path traversal out of the store directory.
func (s *Store) secretPath(name string) (string, error) {
	if name == "" || !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+secretExt), nil
}

func validName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return !strings.Contains(name, "..")
}

// loadOrCreateMaterial reads existing key material from path or generates
// and persists a fresh random buffer of size bytes.
func loadOrCreateMaterial(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != size {
			return nil, fmt.Errorf("corrupt key material at %s: expected %d bytes, got %d", path, size, len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key material: %w", err)
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash.
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to store key material: %w", err)
	}
	return data, nil
}

// zeroBytes zeros sensitive byte slices after use.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
