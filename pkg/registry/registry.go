// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package registry defines the directory of trusted certificates and keys consulted by the
// security pipeline, and provides a static in-memory implementation.
package registry

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"strings"
	"sync"

	"github.com/ewpsec/go-api-security/pkg/keys"
)

// ErrNotFound is returned when a key is not present in the directory.
var ErrNotFound = errors.New("not found")

// Directory answers trust questions about certificates and keys.
//
// Implementations must be safe for concurrent use.
type Directory interface {
	// IsCertificateKnown reports whether the TLS client certificate belongs to a known client.
	IsCertificateKnown(ctx context.Context, cert *x509.Certificate) (bool, error)

	// FindRSAPublicKey looks up a client or server key by its fingerprint.
	FindRSAPublicKey(ctx context.Context, keyID string) (*rsa.PublicKey, error)

	// IsClientKeyKnown reports whether the key is registered as a client key.
	IsClientKeyKnown(ctx context.Context, key *rsa.PublicKey) (bool, error)

	// IsAPICoveredByServerKey reports whether the key is registered as a server key for the endpoint.
	IsAPICoveredByServerKey(ctx context.Context, endpoint string, key *rsa.PublicKey) (bool, error)
}

// Static is an in-memory Directory.
type Static struct {
	certificates map[string]struct{}
	keys         map[string]*rsa.PublicKey
	clientKeys   map[string]struct{}
	serverKeys   map[string][]string
	mu           sync.RWMutex
}

// NewStatic creates an empty Static directory.
func NewStatic() *Static {
	return &Static{
		certificates: map[string]struct{}{},
		keys:         map[string]*rsa.PublicKey{},
		clientKeys:   map[string]struct{}{},
		serverKeys:   map[string][]string{},
	}
}

// AddCertificateFingerprint registers a client certificate by its SHA-256 fingerprint.
func (s *Static) AddCertificateFingerprint(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.certificates[strings.ToLower(fingerprint)] = struct{}{}
}

// AddCertificate registers a client certificate.
func (s *Static) AddCertificate(cert *x509.Certificate) error {
	fingerprint, err := keys.CertificateFingerprint(cert)
	if err != nil {
		return err
	}

	s.AddCertificateFingerprint(fingerprint)

	return nil
}

// AddClientKey registers a client key.
func (s *Static) AddClientKey(key *rsa.PublicKey) error {
	id, err := keys.Fingerprint(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[id] = key
	s.clientKeys[id] = struct{}{}

	return nil
}

// AddServerKey registers a server key covering the given endpoint URLs.
//
// An endpoint ending with "/" covers every URL below it.
func (s *Static) AddServerKey(key *rsa.PublicKey, endpoints ...string) error {
	id, err := keys.Fingerprint(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[id] = key
	s.serverKeys[id] = append(s.serverKeys[id], endpoints...)

	return nil
}

// IsCertificateKnown implements Directory.
func (s *Static) IsCertificateKnown(_ context.Context, cert *x509.Certificate) (bool, error) {
	fingerprint, err := keys.CertificateFingerprint(cert)
	if err != nil {
		return false, nil //nolint:nilerr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.certificates[fingerprint]

	return ok, nil
}

// FindRSAPublicKey implements Directory.
func (s *Static) FindRSAPublicKey(_ context.Context, keyID string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[strings.ToLower(keyID)]
	if !ok {
		return nil, ErrNotFound
	}

	return key, nil
}

// IsClientKeyKnown implements Directory.
func (s *Static) IsClientKeyKnown(_ context.Context, key *rsa.PublicKey) (bool, error) {
	id, err := keys.Fingerprint(key)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.clientKeys[id]

	return ok, nil
}

// IsAPICoveredByServerKey implements Directory.
func (s *Static) IsAPICoveredByServerKey(_ context.Context, endpoint string, key *rsa.PublicKey) (bool, error) {
	id, err := keys.Fingerprint(key)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, covered := range s.serverKeys[id] {
		if covered == endpoint || (strings.HasSuffix(covered, "/") && strings.HasPrefix(endpoint, covered)) {
			return true, nil
		}
	}

	return false, nil
}
