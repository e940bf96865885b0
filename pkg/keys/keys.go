// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package keys contains the logic related to RSA key management and key fingerprints.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// DefaultKeyBits is the size of generated RSA keys.
const DefaultKeyBits = 2048

// ErrInvalidKey is returned when key material cannot be parsed.
var ErrInvalidKey = errors.New("invalid key")

// KeyPair is an RSA private key together with its public key fingerprint.
type KeyPair struct {
	private *rsa.PrivateKey
	id      string
}

// NewKeyPair wraps an RSA private key.
func NewKeyPair(key *rsa.PrivateKey) (*KeyPair, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrInvalidKey)
	}

	id, err := Fingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		private: key,
		id:      id,
	}, nil
}

// GenerateKeyPair generates a new RSA key pair of DefaultKeyBits.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, DefaultKeyBits)
	if err != nil {
		return nil, err
	}

	return NewKeyPair(key)
}

// ID returns the fingerprint of the public key, see Fingerprint.
func (p *KeyPair) ID() string {
	return p.id
}

// Private returns the private key.
func (p *KeyPair) Private() *rsa.PrivateKey {
	return p.private
}

// Public returns the public key.
func (p *KeyPair) Public() *rsa.PublicKey {
	return &p.private.PublicKey
}

// MarshalPEM encodes the private key as a PKCS #8 PEM block.
func (p *KeyPair) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(p.private)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// FingerprintSHA256 returns the SHA-256 digest of the DER-encoded SubjectPublicKeyInfo of the key.
func FingerprintSHA256(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrInvalidKey)
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(der)

	return sum[:], nil
}

// Fingerprint returns the lowercase hex SHA-256 fingerprint of the key.
//
// This is the value used as keyId in HTTP Signatures.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	sum, err := FingerprintSHA256(pub)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sum), nil
}

// CertificateFingerprint returns the lowercase hex SHA-256 fingerprint of the DER-encoded certificate.
func CertificateFingerprint(cert *x509.Certificate) (string, error) {
	if cert == nil || len(cert.Raw) == 0 {
		return "", errors.New("empty certificate")
	}

	sum := sha256.Sum256(cert.Raw)

	return hex.EncodeToString(sum[:]), nil
}

// ParsePublicKey parses an RSA public key. Both PEM ("PUBLIC KEY") and base64 encoded DER are accepted.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	var der []byte

	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
		}

		der = block.Bytes
	} else {
		var err error

		der, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	if k, ok := key.(*rsa.PublicKey); ok {
		return k, nil
	}

	return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, key)
}

// MarshalPublicKey encodes the public key as base64 encoded DER.
func MarshalPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(der), nil
}

// ParseKeyPairPEM parses a PEM encoded RSA private key, in either PKCS #8 or PKCS #1 form.
func ParseKeyPairPEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM block containing private key", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}

		return NewKeyPair(key)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}

		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, key)
		}

		return NewKeyPair(rsaKey)
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}
