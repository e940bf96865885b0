// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package request

import (
	"context"

	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// Anonymous accepts every request.
type Anonymous struct{}

// Authorize implements Authorizer.
func (Anonymous) Authorize(context.Context, *message.Request) (identity.Client, error) {
	return identity.Anonymous{}, nil
}

func (Anonymous) String() string {
	return "Anonymous Client Authorizer"
}

// AnonymousSigner leaves requests untouched.
type AnonymousSigner struct{}

// Sign implements Signer.
func (AnonymousSigner) Sign(context.Context, *message.Request) error {
	return nil
}

func (AnonymousSigner) String() string {
	return "Anonymous Request Signer"
}
