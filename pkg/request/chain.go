// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package request

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// ErrPreferredOutOfRange is returned by NewChain when the preferred index does not name a member
// of the chain.
var ErrPreferredOutOfRange = errors.New("preferred authorizer index out of range")

// UnmatchedError is returned by Chain when none of its authorizers matched.
//
// It is itself an unmatched scheme fault, so chains can be nested. Attempts holds the fault of
// every authorizer tried, in order; their messages are part of the developer message.
type UnmatchedError struct {
	Attempts *multierror.Error
	fault.UnmatchedScheme
}

func (e *UnmatchedError) Error() string {
	return e.UnmatchedScheme.Error()
}

func (e *UnmatchedError) Unwrap() error {
	return &e.UnmatchedScheme
}

// attempt is an authorizer's unmatched scheme fault, as collected by Chain.
type attempt struct {
	authorizer Authorizer
	unmatched  *fault.UnmatchedScheme
}

func (a *attempt) Error() string {
	return fmt.Sprintf("%s (%s)", a.authorizer, a.unmatched.Message)
}

func (a *attempt) Unwrap() error {
	return a.unmatched
}

// Chain tries a list of authorizers in order, until one of them matches the request.
//
// An authorizer which reports an unmatched scheme is skipped. Any other failure stops the chain.
// Chains hold no per-request state.
type Chain struct {
	authorizers []Authorizer
	preferred   int
}

// NewChain creates a Chain. The authorizer at index preferred supplies the status and headers of
// the error returned when nothing matches.
func NewChain(preferred int, authorizers ...Authorizer) (*Chain, error) {
	if preferred < 0 || preferred >= len(authorizers) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPreferredOutOfRange, preferred, len(authorizers))
	}

	return &Chain{
		preferred:   preferred,
		authorizers: authorizers,
	}, nil
}

func (c *Chain) String() string {
	names := make([]string, 0, len(c.authorizers))

	for _, a := range c.authorizers {
		names = append(names, a.String())
	}

	return strings.Join(names, ", ")
}

// Authorize implements Authorizer.
func (c *Chain) Authorize(ctx context.Context, req *message.Request) (identity.Client, error) {
	var (
		attempts           *multierror.Error
		preferredUnmatched *fault.UnmatchedScheme
	)

	for i, a := range c.authorizers {
		outcome := Try(ctx, a, req)

		switch outcome.Verdict {
		case Matched:
			return outcome.Client, nil
		case Unmatched:
			var unmatched *fault.UnmatchedScheme

			errors.As(outcome.Err, &unmatched)

			attempts = multierror.Append(attempts, &attempt{authorizer: a, unmatched: unmatched})

			if i == c.preferred {
				preferredUnmatched = unmatched
			}
		case Rejected:
			cf, ok := fault.AsClientFault(outcome.Err)
			if !ok {
				return nil, outcome.Err
			}

			rewritten := fault.New(cf.Status, "While trying %s: %s", a, cf.Message)
			rewritten.Header = cf.Header.Clone()

			return nil, rewritten
		}
	}

	if preferredUnmatched == nil {
		return nil, fault.Internal("%s did not report its unmatched scheme", c.authorizers[c.preferred])
	}

	attempts.ErrorFormat = joinAttempts

	result := &UnmatchedError{
		Attempts: attempts,
		UnmatchedScheme: fault.UnmatchedScheme{
			ClientFault: fault.ClientFault{
				Status:  preferredUnmatched.Status,
				Header:  preferredUnmatched.Header.Clone(),
				Message: "Could not authorize this request. Authorizers tried: " + attempts.Error(),
			},
		},
	}

	return nil, result
}

func joinAttempts(errs []error) string {
	messages := make([]string, 0, len(errs))

	for _, err := range errs {
		messages = append(messages, err.Error())
	}

	return strings.Join(messages, "; ")
}
