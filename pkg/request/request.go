// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package request implements the request side of the security pipeline: authorizers run by a server
// to verify who sent a request, and signers run by a client to prove it.
package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// Authorizer verifies an incoming request.
//
// Authorize returns a *fault.UnmatchedScheme if the request does not attempt the authorizer's
// scheme at all, and a *fault.ClientFault if it does but fails verification. Authorizers may remove
// headers from the request and record notices on it.
type Authorizer interface {
	fmt.Stringer
	Authorize(ctx context.Context, req *message.Request) (identity.Client, error)
}

// Signer prepares an outgoing request.
type Signer interface {
	fmt.Stringer
	Sign(ctx context.Context, req *message.Request) error
}

// Verdict classifies the result of an authorization attempt.
type Verdict int

// Verdicts.
const (
	Matched Verdict = iota
	Unmatched
	Rejected
)

func (v Verdict) String() string {
	switch v {
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	default:
		return "rejected"
	}
}

// Outcome is the result of running one authorizer.
type Outcome struct {
	Client  identity.Client
	Err     error
	Verdict Verdict
}

// Try runs the authorizer and classifies its result.
func Try(ctx context.Context, a Authorizer, req *message.Request) Outcome {
	client, err := a.Authorize(ctx, req)

	var unmatched *fault.UnmatchedScheme

	switch {
	case err == nil:
		return Outcome{Verdict: Matched, Client: client}
	case errors.As(err, &unmatched):
		return Outcome{Verdict: Unmatched, Err: err}
	default:
		return Outcome{Verdict: Rejected, Err: err}
	}
}

// Option configures the signature based authorizers and signers.
type Option func(*options)

type options struct {
	clock httpsig.Clock
	skew  time.Duration
}

// WithClock sets the clock used to check and emit dates.
func WithClock(clock httpsig.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithAllowedClockSkew sets the maximum accepted difference between a Date header and the clock.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(o *options) {
		o.skew = skew
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock: time.Now,
		skew:  httpsig.DefaultAllowedClockSkew,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
