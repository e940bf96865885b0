// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package coding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// EncodingOption configures an Encoding.
type EncodingOption func(*encodingOptions)

type encodingOptions struct {
	logger   *zap.Logger
	required []string
}

// WithRequired marks codings which the peer must accept.
func WithRequired(tokens ...string) EncodingOption {
	return func(o *encodingOptions) {
		o.required = append(o.required, tokens...)
	}
}

// WithLogger sets the logger used to report skipped optional codings.
func WithLogger(logger *zap.Logger) EncodingOption {
	return func(o *encodingOptions) {
		o.logger = logger
	}
}

// Encoding applies an ordered list of encoders. The first encoder is applied first, so its token
// ends up leftmost in Content-Encoding.
type Encoding struct {
	logger   *zap.Logger
	required map[string]bool
	encoders []Encoder
}

// NewEncoding creates an Encoding. Every required coding must be among the encoders.
func NewEncoding(encoders []Encoder, opts ...EncodingOption) (*Encoding, error) {
	var options encodingOptions

	for _, o := range opts {
		o(&options)
	}

	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	e := &Encoding{
		encoders: encoders,
		required: map[string]bool{},
		logger:   options.logger,
	}

	seen := map[string]bool{}

	for _, enc := range encoders {
		token := strings.ToLower(enc.ContentEncoding())

		if seen[token] {
			return nil, fmt.Errorf("repeated coding: %s", token)
		}

		seen[token] = true
	}

	for _, token := range options.required {
		token = strings.ToLower(token)

		if !seen[token] {
			return nil, fmt.Errorf("required coding %s has no encoder", token)
		}

		e.required[token] = true
	}

	return e, nil
}

// Encode encodes a response with every encoder accepted by the request's Accept-Encoding header.
//
// A failing optional encoder is skipped. A failing required encoder aborts encoding with its fault.
func (e *Encoding) Encode(ctx context.Context, req *message.Request, resp *message.Response) error {
	accepted := AcceptableCodings(req.Header.Get(message.AcceptEncodingHeaderKey))

	for _, enc := range e.encoders {
		token := strings.ToLower(enc.ContentEncoding())

		if e.required[token] && !accepted[token] {
			return fault.New(http.StatusBadRequest, "This endpoint requires all requests to accept the %s Content-Encoding.", token)
		}
	}

	nonIdentityApplied := false

	for _, enc := range e.encoders {
		token := strings.ToLower(enc.ContentEncoding())

		if !accepted[token] {
			continue
		}

		if err := enc.Encode(ctx, req, resp); err != nil {
			cf, isFault := fault.AsClientFault(err)
			if e.required[token] || !isFault {
				return err
			}

			e.logger.Warn("skipping optional content coding", zap.String("coding", token), zap.String("reason", cf.Message))
			resp.AddWarning("Could not apply the optional %s Content-Encoding: %s", token, cf.Message)

			continue
		}

		if token != IdentityToken {
			nonIdentityApplied = true
		}
	}

	if !nonIdentityApplied && !accepted[IdentityToken] {
		return fault.New(http.StatusNotAcceptable, "The 'identity' Content-Encoding was explicitly forbidden, "+
			"but we are unable to generate content in any other encoding. Allow identity to see the proper error message.")
	}

	return nil
}

// EncodeRequest applies every encoder to a request. Any failure aborts encoding.
func (e *Encoding) EncodeRequest(ctx context.Context, req *message.Request) error {
	for _, enc := range e.encoders {
		if err := enc.Encode(ctx, req, req); err != nil {
			return err
		}
	}

	return nil
}

// ContentEncodings returns the tokens of all encoders, in application order.
func (e *Encoding) ContentEncodings() []string {
	tokens := make([]string, 0, len(e.encoders))

	for _, enc := range e.encoders {
		tokens = append(tokens, enc.ContentEncoding())
	}

	return tokens
}
