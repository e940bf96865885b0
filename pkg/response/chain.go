// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package response

import (
	"context"
	"net/http"
	"strings"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// SignerChain signs with the first signer the client asked for.
type SignerChain struct {
	signers []Signer
}

// NewSignerChain creates a SignerChain. Signers are tried in order.
func NewSignerChain(signers ...Signer) *SignerChain {
	return &SignerChain{signers: signers}
}

// Sign implements Signer.
func (c *SignerChain) Sign(ctx context.Context, req *message.Request, resp *message.Response) error {
	for _, s := range c.signers {
		if s.WasRequestedFor(req) {
			return s.Sign(ctx, req, resp)
		}
	}

	return fault.New(http.StatusBadRequest, "This endpoint requires the client to explicitly request one of the "+
		"following ways of response signing: %s", c.String())
}

// WasRequestedFor implements Signer.
func (c *SignerChain) WasRequestedFor(req *message.Request) bool {
	for _, s := range c.signers {
		if s.WasRequestedFor(req) {
			return true
		}
	}

	return false
}

func (c *SignerChain) String() string {
	names := make([]string, 0, len(c.signers))

	for _, s := range c.signers {
		names = append(names, s.String())
	}

	return strings.Join(names, ", ")
}
