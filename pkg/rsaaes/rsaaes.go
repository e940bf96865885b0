// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package rsaaes implements the binary format of the ewp-rsa-aes128gcm content coding.
//
// An encoded body is laid out as follows:
//
//	recipient key fingerprint  32 bytes, SHA-256 of the DER-encoded public key
//	encrypted AES key length   2 bytes, big endian
//	encrypted AES key          RSA PKCS #1 v1.5 encrypted 16-byte AES key
//	payload                    AES-128-GCM ciphertext (zero nonce, the key is never reused)
package rsaaes

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ewpsec/go-api-security/pkg/keys"
)

// Token is the content coding name.
const Token = "ewp-rsa-aes128gcm"

const (
	fingerprintSize = sha256.Size
	aesKeySize      = 16
	lengthSize      = 2
)

var (
	// ErrMalformed is returned when the body is not a valid encoded body.
	ErrMalformed = errors.New("malformed ewp-rsa-aes128gcm body")

	// ErrWrongRecipient is returned when the body was encrypted for another key.
	ErrWrongRecipient = errors.New("body was encrypted for another recipient")
)

// Encrypt encrypts the plaintext for the recipient key.
func Encrypt(recipient *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	fingerprint, err := keys.FingerprintSHA256(recipient)
	if err != nil {
		return nil, err
	}

	aesKey := make([]byte, aesKeySize)
	if _, err = rand.Read(aesKey); err != nil {
		return nil, err
	}

	encryptedKey, err := rsa.EncryptPKCS1v15(rand.Reader, recipient, aesKey)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.Grow(fingerprintSize + lengthSize + len(encryptedKey) + len(plaintext) + gcm.Overhead())
	buf.Write(fingerprint)
	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(encryptedKey))))
	buf.Write(encryptedKey)
	buf.Write(gcm.Seal(nil, make([]byte, gcm.NonceSize()), plaintext, nil))

	return buf.Bytes(), nil
}

// RecipientFingerprint returns the raw SHA-256 fingerprint of the key the body was encrypted for.
func RecipientFingerprint(data []byte) ([]byte, error) {
	if len(data) < fingerprintSize+lengthSize {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}

	return data[:fingerprintSize], nil
}

// Decrypt decrypts a body encrypted for the key pair.
func Decrypt(pair *keys.KeyPair, data []byte) ([]byte, error) {
	fingerprint, err := RecipientFingerprint(data)
	if err != nil {
		return nil, err
	}

	own, err := keys.FingerprintSHA256(pair.Public())
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(fingerprint, own) {
		return nil, ErrWrongRecipient
	}

	rest := data[fingerprintSize:]
	keyLen := int(binary.BigEndian.Uint16(rest))
	rest = rest[lengthSize:]

	if len(rest) < keyLen {
		return nil, fmt.Errorf("%w: truncated key", ErrMalformed)
	}

	// stays random if the padding is invalid, the GCM tag check then fails
	aesKey := make([]byte, aesKeySize)
	if _, err = rand.Read(aesKey); err != nil {
		return nil, err
	}

	if err = rsa.DecryptPKCS1v15SessionKey(rand.Reader, pair.Private(), rest[:keyLen], aesKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, make([]byte, gcm.NonceSize()), rest[keyLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
