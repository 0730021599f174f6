// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the encrypted wire format Device A expects:
// PBKDF2-HMAC-SHA256 key derivation followed by AES-256-GCM with a
// nonce-prefixed, no-padding base64 framing. The format is dictated by the
// device firmware and must be reproduced bit-exact.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrAuthentication is returned when the AEAD tag fails to verify.
	ErrAuthentication = errors.New("codec: authentication failed")
	// ErrMalformedFrame is returned when the wire string is too short or not
	// valid base64.
	ErrMalformedFrame = errors.New("codec: malformed frame")
	// ErrEncoding is returned when decrypted bytes are not valid UTF-8.
	ErrEncoding = errors.New("codec: invalid utf-8")
)

const (
	nonceSize       = 12
	nonceB64Len     = 16 // 12 bytes of no-pad base64 is always 16 characters
	keySize         = 32
	defaultSalt     = "example_salt"
	defaultIterations = 10_000
)

// DefaultSalt and DefaultIterations mirror Device A's settings.rs defaults.
const (
	DefaultSalt       = defaultSalt
	DefaultIterations = defaultIterations
)

// DeriveKey derives a 32-byte AES-256 key from a passphrase using
// PBKDF2-HMAC-SHA256. Deterministic: identical inputs always yield an
// identical key.
func DeriveKey(passphrase, salt string, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, keySize, sha256New)
}

// Encrypt encrypts text with AES-256-GCM under key, using a fresh random
// 12-byte nonce, and returns the wire-format string:
// base64rawstd(nonce) + base64rawstd(ciphertext||tag).
func Encrypt(key []byte, text string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("codec: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("codec: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("codec: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(text), nil)

	enc := base64.RawStdEncoding
	return enc.EncodeToString(nonce) + enc.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The first nonceB64Len characters of wire are the
// base64-no-pad encoded nonce; the rest is the base64-no-pad encoded
// ciphertext with the GCM tag appended.
func Decrypt(key []byte, wire string) (string, error) {
	if len(wire) < nonceB64Len {
		return "", ErrMalformedFrame
	}

	enc := base64.RawStdEncoding
	nonce, err := enc.DecodeString(wire[:nonceB64Len])
	if err != nil {
		return "", ErrMalformedFrame
	}
	ciphertext, err := enc.DecodeString(wire[nonceB64Len:])
	if err != nil {
		return "", ErrMalformedFrame
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("codec: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("codec: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}

	if !isValidUTF8(plaintext) {
		return "", ErrEncoding
	}
	return string(plaintext), nil
}
