// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package response

import (
	"context"
	"net/http"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// TLS trusts the server identity established by the TLS handshake.
type TLS struct{}

// Authorize implements Authorizer.
func (TLS) Authorize(_ context.Context, req *message.Request, resp *message.Response) (identity.Server, error) {
	if !req.IsHTTPS() {
		return nil, fault.Peer("Requests need to be made over TLS (https) connection.")
	}

	if err := verifyRequestID(req, resp); err != nil {
		return nil, err
	}

	return identity.CertificateServer{Hostname: req.Hostname()}, nil
}

func (TLS) String() string {
	return "Regular TLS Response Authorizer"
}

// TLSSigner relies on the TLS connection to authenticate the server.
type TLSSigner struct{}

// Sign implements Signer.
func (TLSSigner) Sign(_ context.Context, req *message.Request, resp *message.Response) error {
	includeRequestID(req, resp)

	if !req.IsHTTPS() {
		return fault.New(http.StatusBadRequest, "Requests need to be made over TLS (https) connection.")
	}

	return nil
}

// WasRequestedFor implements Signer. Every request made over https accepts TLS server authentication.
func (TLSSigner) WasRequestedFor(req *message.Request) bool {
	return req.IsHTTPS()
}

func (TLSSigner) String() string {
	return "Regular TLS Response Signer"
}
