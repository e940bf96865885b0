// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package client provides an http.RoundTripper which runs the security pipeline around outgoing requests.
package client

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ewpsec/go-api-security/pkg/coding"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/request"
	"github.com/ewpsec/go-api-security/pkg/response"
)

// Options are the options for the Transport.
type Options struct {
	// Base sends the secured requests. Defaults to a clone of http.DefaultTransport with compression
	// disabled, as response codings are stripped by Decoding.
	Base http.RoundTripper

	// Signer signs requests. Required.
	Signer request.Signer

	// Authorizer verifies responses. Required.
	Authorizer response.Authorizer

	// Encoding is applied to request bodies, if set.
	Encoding *coding.Encoding

	// Decoding strips response codings, if set. Its codings are advertised in Accept-Encoding.
	Decoding *coding.Decoding

	Logger *zap.Logger

	// ResponseEncryptionKey is sent in Accept-Response-Encryption-Key, asking the server to
	// encrypt responses to it.
	ResponseEncryptionKey *rsa.PublicKey

	// AcceptSignature lists the response signature algorithms to ask for.
	AcceptSignature []string
}

// Transport is an http.RoundTripper securing every request it sends.
type Transport struct {
	tlsBases    map[*tls.Certificate]http.RoundTripper
	initErr     error
	options     Options
	tlsBaseLock sync.Mutex
	initOnce    sync.Once
}

// New creates a new Transport.
func New(options Options) *Transport {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	return &Transport{
		options:  options,
		tlsBases: map[*tls.Certificate]http.RoundTripper{},
	}
}

func (t *Transport) init() {
	if t.options.Signer == nil || t.options.Authorizer == nil {
		t.initErr = errors.New("client transport requires a request signer and a response authorizer")

		return
	}

	if t.options.Base == nil {
		base := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert,errcheck
		base.DisableCompression = true

		t.options.Base = base
	}

	if t.options.Decoding == nil {
		t.options.Decoding, t.initErr = coding.NewDecoding(nil)
	}
}

// RoundTrip implements http.RoundTripper.
//
// Responses which fail authorization are returned as errors. The caller's request is not modified.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	req, err := message.FromHTTPRequest(r.Clone(r.Context()))
	if err != nil {
		return nil, err
	}

	resp, _, err := t.Do(r.Context(), req)
	if err != nil {
		return nil, err
	}

	body := resp.BodyOrEmpty()

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status)),
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Header.HTTPHeader(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}, nil
}

// Do sends the request through the pipeline: the request is encoded and signed, and the response
// is authorized and decoded. The returned server identity is the one which signed the response.
func (t *Transport) Do(ctx context.Context, req *message.Request) (*message.Response, identity.Server, error) {
	t.initOnce.Do(t.init)

	if t.initErr != nil {
		return nil, nil, t.initErr
	}

	if err := t.prepare(req); err != nil {
		return nil, nil, err
	}

	if t.options.Encoding != nil {
		if err := t.options.Encoding.EncodeRequest(ctx, req); err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if err := t.options.Signer.Sign(ctx, req); err != nil {
		return nil, nil, fmt.Errorf("failed to sign request: %w", err)
	}

	t.logNotices("request", req.Notices())

	httpReq, err := req.ToHTTP(ctx)
	if err != nil {
		return nil, nil, err
	}

	httpResp, err := t.base(req).RoundTrip(httpReq)
	if err != nil {
		return nil, nil, err
	}

	resp, err := message.FromHTTPResponse(httpResp)
	if err != nil {
		return nil, nil, err
	}

	server, err := t.options.Authorizer.Authorize(ctx, req, resp)
	if err != nil {
		t.options.Logger.Warn("response rejected", zap.String("url", req.URL.String()), zap.Error(err))

		return nil, nil, err
	}

	if err = t.options.Decoding.DecodeResponse(req, resp); err != nil {
		return nil, nil, err
	}

	t.logNotices("response", resp.Notices())

	return resp, server, nil
}

// prepare adds the negotiation headers of the pipeline, unless the caller has set them.
func (t *Transport) prepare(req *message.Request) error {
	if !req.Header.Has(message.AcceptEncodingHeaderKey) {
		tokens := t.options.Decoding.ContentEncodings()
		if len(tokens) == 0 {
			tokens = []string{coding.IdentityToken}
		}

		req.Header.Set(message.AcceptEncodingHeaderKey, strings.Join(tokens, ", "))
	}

	if len(t.options.AcceptSignature) > 0 && !req.Header.Has(message.AcceptSignatureHeaderKey) {
		req.Header.Set(message.AcceptSignatureHeaderKey, strings.Join(t.options.AcceptSignature, ", "))
	}

	if t.options.ResponseEncryptionKey != nil && !req.Header.Has(message.AcceptResponseEncryptionKeyHeaderKey) {
		encoded, err := keys.MarshalPublicKey(t.options.ResponseEncryptionKey)
		if err != nil {
			return err
		}

		req.Header.Set(message.AcceptResponseEncryptionKeyHeaderKey, encoded)
	}

	return nil
}

// base returns the transport presenting the client certificate bound to the request, if any.
func (t *Transport) base(req *message.Request) http.RoundTripper {
	if req.TLSCertificate == nil {
		return t.options.Base
	}

	httpTransport, ok := t.options.Base.(*http.Transport)
	if !ok {
		return t.options.Base
	}

	t.tlsBaseLock.Lock()
	defer t.tlsBaseLock.Unlock()

	if rt, ok := t.tlsBases[req.TLSCertificate]; ok {
		return rt
	}

	clone := httpTransport.Clone()

	if clone.TLSClientConfig == nil {
		clone.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	clone.TLSClientConfig.Certificates = []tls.Certificate{*req.TLSCertificate}

	t.tlsBases[req.TLSCertificate] = clone

	return clone
}

func (t *Transport) logNotices(side string, notices []message.Notice) {
	for _, n := range notices {
		t.options.Logger.Debug(n.Text, zap.String("side", side), zap.Stringer("level", n.Level))
	}
}
