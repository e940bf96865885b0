// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package identity describes who the peer of a request or response was proven to be.
package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/ewpsec/go-api-security/pkg/keys"
)

// Client is the proven identity of the party which sent a request.
//
// Implementations: Anonymous, Certificate, RSAKey.
type Client interface {
	fmt.Stringer
	client()
}

// Server is the proven identity of the party which sent a response.
//
// Implementations: CertificateServer, RSAKeyServer.
type Server interface {
	fmt.Stringer
	server()
}

// Anonymous is a client which did not prove anything.
type Anonymous struct{}

func (Anonymous) client() {}

func (Anonymous) String() string {
	return "anonymous client"
}

// Certificate is a client authenticated with a TLS client certificate.
type Certificate struct {
	Certificate *x509.Certificate
}

func (Certificate) client() {}

func (c Certificate) String() string {
	fingerprint, err := keys.CertificateFingerprint(c.Certificate)
	if err != nil {
		return "certificate client"
	}

	return fmt.Sprintf("client certificate %s", fingerprint)
}

// RSAKey is a client authenticated by an HTTP Signature made with an RSA key.
type RSAKey struct {
	PublicKey *rsa.PublicKey
}

func (RSAKey) client() {}

func (c RSAKey) String() string {
	return "client key " + keyID(c.PublicKey)
}

// CertificateServer is a server whose identity was established by the TLS handshake.
type CertificateServer struct {
	Hostname string
}

func (CertificateServer) server() {}

func (s CertificateServer) String() string {
	return "TLS server " + s.Hostname
}

// RSAKeyServer is a server authenticated by a response HTTP Signature.
type RSAKeyServer struct {
	PublicKey *rsa.PublicKey
}

func (RSAKeyServer) server() {}

func (s RSAKeyServer) String() string {
	return "server key " + keyID(s.PublicKey)
}

func keyID(pub *rsa.PublicKey) string {
	id, err := keys.Fingerprint(pub)
	if err != nil {
		return "<invalid>"
	}

	return id
}
