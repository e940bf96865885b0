// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package request

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/registry"
)

// Certificate authorizes requests by the TLS client certificate.
type Certificate struct {
	directory registry.Directory
}

// NewCertificate creates a Certificate authorizer.
func NewCertificate(directory registry.Directory) *Certificate {
	return &Certificate{directory: directory}
}

// Authorize implements Authorizer.
func (a *Certificate) Authorize(ctx context.Context, req *message.Request) (identity.Client, error) {
	if req.ClientCertificate == nil {
		return nil, fault.Unmatched(http.StatusForbidden, "Expecting client certificate to be used for TLS transport.")
	}

	known, err := a.directory.IsCertificateKnown(ctx, req.ClientCertificate)
	if err != nil {
		return nil, fault.Internal("directory lookup failed: %w", err)
	}

	if !known {
		return nil, fault.New(http.StatusForbidden, "Unknown client certificate (could not find it amongst registered EWP members).")
	}

	client := identity.Certificate{Certificate: req.ClientCertificate}

	req.AddNotice("Request has been successfully authenticated with TLS certificate. Client identified: %s", client)

	return client, nil
}

func (a *Certificate) String() string {
	return "EWP TLS Certificate Authorizer"
}

// CertificateSigner binds a TLS client certificate to the request's transport.
type CertificateSigner struct {
	certificate *tls.Certificate
}

// NewCertificateSigner creates a CertificateSigner.
func NewCertificateSigner(certificate *tls.Certificate) *CertificateSigner {
	return &CertificateSigner{certificate: certificate}
}

// Sign implements Signer. The certificate is set on the request, headers are not touched.
func (s *CertificateSigner) Sign(_ context.Context, req *message.Request) error {
	req.TLSCertificate = s.certificate

	if s.certificate.Leaf != nil {
		req.ClientCertificate = s.certificate.Leaf

		return nil
	}

	if len(s.certificate.Certificate) == 0 {
		return fault.Internal("TLS certificate has no certificate chain")
	}

	leaf, err := x509.ParseCertificate(s.certificate.Certificate[0])
	if err != nil {
		return fault.Internal("failed to parse TLS certificate: %w", err)
	}

	req.ClientCertificate = leaf

	return nil
}

func (s *CertificateSigner) String() string {
	return "EWP TLS Certificate Request Signer"
}
