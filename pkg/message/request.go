// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package message

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"strings"
)

// Request is an HTTP request travelling through the security pipeline.
type Request struct {
	URL *url.URL

	// ClientCertificate is the certificate presented by the client during the TLS handshake.
	// It is bound at the transport layer and cannot be influenced by headers.
	ClientCertificate *x509.Certificate

	// TLSCertificate is the certificate/key pair the client transport should present.
	TLSCertificate *tls.Certificate

	Method string

	Entity
}

// NewRequest creates a request for the given method and absolute URL.
func NewRequest(method, rawURL string, body []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("request URL must be absolute: %q", rawURL)
	}

	return &Request{
		Method: strings.ToUpper(method),
		URL:    u,
		Entity: Entity{Body: body},
	}, nil
}

// PathPseudoHeader returns the path and query of the request, as used by the (request-target)
// pseudo-header.
func (r *Request) PathPseudoHeader() string {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	return path
}

// IsHTTPS reports whether the request was made over TLS.
func (r *Request) IsHTTPS() bool {
	return strings.EqualFold(r.URL.Scheme, "https")
}

// Hostname returns the host of the request URL, without the port.
func (r *Request) Hostname() string {
	return r.URL.Hostname()
}
