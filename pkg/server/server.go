// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package server provides net/http middleware which runs the security pipeline around an API handler.
//
// Incoming requests are authorized and decoded before the handler sees them. The handler's response
// is then encoded and signed before it is written out.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ewpsec/go-api-security/pkg/coding"
	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/request"
	"github.com/ewpsec/go-api-security/pkg/response"
)

type contextKey struct{}

// ClientFromContext returns the client identity established by the middleware.
func ClientFromContext(ctx context.Context) (identity.Client, bool) {
	client, ok := ctx.Value(contextKey{}).(identity.Client)

	return client, ok
}

// Option configures the Middleware.
type Option func(*Middleware)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// WithMetrics makes the middleware record its outcomes.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithDecoding sets the decoding applied to request bodies.
func WithDecoding(decoding *coding.Decoding) Option {
	return func(m *Middleware) {
		m.decoding = decoding
	}
}

// WithEncoding sets the encoding applied to response bodies.
func WithEncoding(encoding *coding.Encoding) Option {
	return func(m *Middleware) {
		m.encoding = encoding
	}
}

// Middleware secures a single API endpoint.
type Middleware struct {
	authorizer request.Authorizer
	signer     response.Signer
	decoding   *coding.Decoding
	encoding   *coding.Encoding
	logger     *zap.Logger
	metrics    *Metrics
}

// NewMiddleware creates a Middleware. Without decoding and encoding options, bodies pass through
// unchanged and any Content-Encoding on a request is rejected.
func NewMiddleware(authorizer request.Authorizer, signer response.Signer, opts ...Option) (*Middleware, error) {
	m := &Middleware{
		authorizer: authorizer,
		signer:     signer,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.decoding == nil {
		decoding, err := coding.NewDecoding(nil)
		if err != nil {
			return nil, err
		}

		m.decoding = decoding
	}

	return m, nil
}

// Wrap returns a handler running the pipeline around next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req, err := message.FromHTTPRequest(r)
		if err != nil {
			m.fail(ctx, w, nil, readFault(err))

			return
		}

		client, err := m.authorizer.Authorize(ctx, req)
		if err != nil {
			m.fail(ctx, w, req, err)

			return
		}

		m.metrics.authorized(client)

		if err = m.decoding.Decode(req); err != nil {
			m.fail(ctx, w, req, err)

			return
		}

		m.logNotices("request", req.Notices())

		recorder := newRecorder()
		next.ServeHTTP(recorder, innerRequest(r.WithContext(context.WithValue(ctx, contextKey{}, client)), req))

		resp := recorder.response()

		if m.encoding != nil {
			if err = m.encoding.Encode(ctx, req, resp); err != nil {
				m.fail(ctx, w, req, err)

				return
			}
		}

		if err = m.signer.Sign(ctx, req, resp); err != nil {
			m.fail(ctx, w, req, err)

			return
		}

		m.metrics.served(resp.Status)
		m.write(w, resp)
	})
}

// innerRequest hands the authorized and decoded request to the handler.
func innerRequest(r *http.Request, req *message.Request) *http.Request {
	r.Header = req.Header.HTTPHeader()
	r.Header.Del(message.HostHeaderKey)
	r.Body = io.NopCloser(bytes.NewReader(req.BodyOrEmpty()))
	r.ContentLength = int64(len(req.Body))

	return r
}

// fail writes the error response for err. The response is signed when possible, so that clients
// can trust the error as well.
func (m *Middleware) fail(ctx context.Context, w http.ResponseWriter, req *message.Request, err error) {
	resp := fault.ResponseFor(err)

	if cf, ok := fault.AsClientFault(err); ok {
		m.logger.Debug("request rejected", zap.Int("status", cf.Status), zap.String("message", cf.Message))
	} else {
		m.logger.Error("request processing failed", zap.Error(err))
	}

	m.metrics.failed(resp.Status)

	if req != nil && m.signer.WasRequestedFor(req) {
		if signErr := m.signer.Sign(ctx, req, resp); signErr != nil {
			m.logger.Warn("failed to sign error response", zap.Error(signErr))
		}
	}

	m.write(w, resp)
}

func (m *Middleware) write(w http.ResponseWriter, resp *message.Response) {
	m.logNotices("response", resp.Notices())

	if err := resp.WriteTo(w); err != nil {
		m.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (m *Middleware) logNotices(side string, notices []message.Notice) {
	for _, n := range notices {
		m.logger.Debug(n.Text, zap.String("side", side), zap.Stringer("level", n.Level))
	}
}

func readFault(err error) error {
	if errors.Is(err, message.ErrBodyTooLarge) {
		return fault.New(http.StatusRequestEntityTooLarge, "Request body exceeds %d bytes.", message.MaxBodySize)
	}

	return fault.New(http.StatusBadRequest, "Could not read the request body: %s", err)
}

// recorder buffers the handler's response, so it can be encoded and signed as a whole.
type recorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.body.Write(p)
}

func (r *recorder) response() *message.Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	resp := message.NewResponse(status, nil)

	if r.body.Len() > 0 {
		resp.Body = r.body.Bytes()
	}

	resp.Header = message.HeaderFromHTTP(r.header)

	return resp
}
