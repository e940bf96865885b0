// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package response implements the response side of the security pipeline: authorizers run by a
// client to verify who sent a response, and signers run by a server to prove it.
//
// Every call takes the request the response belongs to as an explicit argument, so a single
// authorizer or signer serves any number of concurrent exchanges.
package response

import (
	"context"
	"fmt"
	"time"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// Authorizer verifies a response received for a request. Failures are *fault.PeerAuthenticationError.
type Authorizer interface {
	fmt.Stringer
	Authorize(ctx context.Context, req *message.Request, resp *message.Response) (identity.Server, error)
}

// Signer prepares a response to a request.
type Signer interface {
	fmt.Stringer
	Sign(ctx context.Context, req *message.Request, resp *message.Response) error

	// WasRequestedFor reports whether the request indicates that the client expects this scheme.
	WasRequestedFor(req *message.Request) bool
}

// Option configures authorizers and signers.
type Option func(*options)

type options struct {
	clock         httpsig.Clock
	signedHeaders []string
	skew          time.Duration
	date          bool
	originalDate  bool
}

// WithClock sets the clock used to check and emit dates.
func WithClock(clock httpsig.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithAllowedClockSkew sets the maximum accepted difference between a date header and the clock.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(o *options) {
		o.skew = skew
	}
}

// WithDateHeaders selects which of Date and Original-Date a signer adds when missing.
func WithDateHeaders(date, originalDate bool) Option {
	return func(o *options) {
		o.date = date
		o.originalDate = originalDate
	}
}

// WithSignedHeaders makes a signer cover the given headers instead of every header present.
func WithSignedHeaders(names ...string) Option {
	return func(o *options) {
		o.signedHeaders = names
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock: time.Now,
		skew:  httpsig.DefaultAllowedClockSkew,
		date:  true,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// verifyRequestID checks that the response does not carry an X-Request-Id other than the request's.
func verifyRequestID(req *message.Request, resp *message.Response) error {
	respID, ok := resp.Header.Lookup(message.RequestIDHeaderKey)
	if !ok {
		return nil
	}

	reqID, ok := req.Header.Lookup(message.RequestIDHeaderKey)
	if !ok {
		return fault.Peer("The request didn't contain the X-Request-Id header, so the response also shouldn't.")
	}

	if reqID != respID {
		return fault.Peer("Expecting the response to contain exactly the same X-Request-Id as has been sent in the request.")
	}

	return nil
}

// includeRequestID echoes the request's X-Request-Id.
func includeRequestID(req *message.Request, resp *message.Response) {
	if resp.Header.Has(message.RequestIDHeaderKey) {
		return
	}

	if id, ok := req.Header.Lookup(message.RequestIDHeaderKey); ok {
		resp.Header.Set(message.RequestIDHeaderKey, id)
	}
}
