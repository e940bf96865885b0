// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package request

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/registry"
)

// requiredSignedHeaders must be covered by every request signature, besides date or original-date.
var requiredSignedHeaders = []string{httpsig.RequestTarget, "host", "digest", "x-request-id"}

// HTTPSig authorizes requests signed with an HTTP Signature made with a registered client key.
type HTTPSig struct {
	directory registry.Directory
	options   options
}

// NewHTTPSig creates an HTTPSig authorizer.
func NewHTTPSig(directory registry.Directory, opts ...Option) *HTTPSig {
	return &HTTPSig{
		directory: directory,
		options:   newOptions(opts),
	}
}

func (a *HTTPSig) String() string {
	return "EWP HTTP Signature Authorizer"
}

// Unmatched returns the fault reported when a request is not signed at all.
func (a *HTTPSig) Unmatched() *fault.UnmatchedScheme {
	u := fault.Unmatched(http.StatusUnauthorized, "This endpoint requires HTTP Signature Authorization, as specified here: "+
		"https://github.com/erasmus-without-paper/ewp-specs-sec-cliauth-httpsig")
	u.Header.Set(message.WWWAuthenticateHeaderKey, `Signature realm="EWP"`)
	u.Header.Set(message.WantDigestHeaderKey, httpsig.DigestAlgorithmSHA256)

	return u
}

// Authorize implements Authorizer.
//
// The checks run in a fixed order, and the first failing one is reported. Once the signature is
// verified, all headers it does not cover are removed from the request.
func (a *HTTPSig) Authorize(ctx context.Context, req *message.Request) (identity.Client, error) {
	d, err := a.verifyAuthorizationHeader(req)
	if err != nil {
		return nil, err
	}

	if req.Header.Get(message.HostHeaderKey) != req.URL.Host {
		return nil, fault.New(http.StatusBadRequest, `Request's "host" header is either missing or it doesn't match what we expect.`)
	}

	clientKey, err := a.verifyClientKey(ctx, d.KeyID)
	if err != nil {
		return nil, err
	}

	if err = a.verifyDates(req); err != nil {
		return nil, err
	}

	if err = verifyRequestID(req); err != nil {
		return nil, err
	}

	if err = d.Verify(clientKey, req.Method, req.PathPseudoHeader(), &req.Header); err != nil {
		return nil, fault.New(http.StatusBadRequest, "Invalid HTTP Signature: %s", err)
	}

	if err = verifyDigest(req); err != nil {
		return nil, err
	}

	// the Authorization header stays, later stages read the signature from it
	for _, name := range req.Header.Names() {
		if d.Covers(name) || strings.EqualFold(name, message.AuthorizationHeaderKey) {
			continue
		}

		req.Header.Del(name)
		req.AddWarning("%s header was removed during the authorization process, because it has not been signed with HTTP Signature.", name)
	}

	return identity.RSAKey{PublicKey: clientKey}, nil
}

func (a *HTTPSig) verifyAuthorizationHeader(req *message.Request) (*httpsig.Descriptor, error) {
	value, ok := req.Header.Lookup(message.AuthorizationHeaderKey)
	if !ok || !httpsig.HasSignatureScheme(value) {
		return nil, a.Unmatched()
	}

	d, err := httpsig.ParseAuthorization(value)
	if err != nil {
		return nil, fault.New(http.StatusBadRequest, "Could not parse the Authorization header")
	}

	if d.Algorithm != httpsig.AlgorithmRSASHA256 {
		return nil, fault.New(http.StatusBadRequest, "This endpoint requires HTTP Signature to use one of the following algorithms: %s",
			httpsig.AlgorithmRSASHA256)
	}

	for _, name := range requiredSignedHeaders {
		if !d.Covers(name) {
			return nil, fault.New(http.StatusBadRequest, `This endpoint requires your HTTP Signature to cover the "%s" header.`, name)
		}
	}

	if !d.Covers(message.DateHeaderKey) && !d.Covers(message.OriginalDateHeaderKey) {
		return nil, fault.New(http.StatusBadRequest,
			`This endpoint requires your HTTP Signature to cover the "Date" header or the "Original-Date" (or both).`)
	}

	return d, nil
}

// verifyClientKey resolves the key, accepting only keys registered as client keys.
func (a *HTTPSig) verifyClientKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	key, err := a.directory.FindRSAPublicKey(ctx, keyID)

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return nil, fault.New(http.StatusForbidden, "Unknown client key: %s", keyID)
	case err != nil:
		return nil, fault.Internal("directory lookup failed: %w", err)
	}

	known, err := a.directory.IsClientKeyKnown(ctx, key)
	if err != nil {
		return nil, fault.Internal("directory lookup failed: %w", err)
	}

	if !known {
		return nil, fault.New(http.StatusForbidden, "Unknown client key: %s", keyID)
	}

	return key, nil
}

func (a *HTTPSig) verifyDates(req *message.Request) error {
	var present []string

	for _, name := range []string{message.DateHeaderKey, message.OriginalDateHeaderKey} {
		if req.Header.Has(name) {
			present = append(present, name)
		}
	}

	if len(present) == 0 {
		return fault.New(http.StatusBadRequest,
			`This endpoint requires your request to include the "Date" header or the "Original-Date" (or both).`)
	}

	now := a.options.clock()

	for _, name := range present {
		if err := httpsig.CheckDate(req.Header.Get(name), now, a.options.skew); err != nil {
			return fault.New(http.StatusBadRequest, `The value of the "%s" failed verification: %s`, name, err)
		}
	}

	return nil
}

func verifyRequestID(req *message.Request) error {
	value, ok := req.Header.Lookup(message.RequestIDHeaderKey)
	if !ok {
		return fault.New(http.StatusBadRequest, `Missing "X-Request-Id" header`)
	}

	if !httpsig.ValidRequestID(value) {
		return fault.New(http.StatusBadRequest, "X-Request-Id must be an UUID formatted in canonical form")
	}

	return nil
}

func verifyDigest(req *message.Request) error {
	value, ok := req.Header.Lookup(message.DigestHeaderKey)
	if !ok {
		return fault.New(http.StatusBadRequest, "Missing header: Digest")
	}

	switch err := httpsig.VerifyDigest(value, req.BodyOrEmpty()); {
	case errors.Is(err, httpsig.ErrDigestMissing):
		return fault.New(http.StatusBadRequest, "Missing SHA-256 digest in Digest header")
	case err != nil:
		return fault.New(http.StatusBadRequest, "Digest mismatch. Expected: %s", httpsig.DigestBase64(req.BodyOrEmpty()))
	}

	return nil
}

// HTTPSigSigner signs requests with an HTTP Signature.
type HTTPSigSigner struct {
	keyPair *keys.KeyPair
	options options
}

// NewHTTPSigSigner creates an HTTPSigSigner.
func NewHTTPSigSigner(keyPair *keys.KeyPair, opts ...Option) *HTTPSigSigner {
	return &HTTPSigSigner{
		keyPair: keyPair,
		options: newOptions(opts),
	}
}

func (s *HTTPSigSigner) String() string {
	return "EWP HTTP Signature Request Signer"
}

// KeyID returns the keyId used in signatures.
func (s *HTTPSigSigner) KeyID() string {
	return s.keyPair.ID()
}

// Sign implements Signer.
//
// Missing Host, Date and X-Request-Id headers are added, then the Digest and Authorization headers
// are computed. Every header present is covered by the signature.
func (s *HTTPSigSigner) Sign(_ context.Context, req *message.Request) error {
	if !req.Header.Has(message.HostHeaderKey) {
		req.Header.Set(message.HostHeaderKey, req.URL.Host)
	}

	if !req.Header.Has(message.DateHeaderKey) && !req.Header.Has(message.OriginalDateHeaderKey) {
		req.Header.Set(message.DateHeaderKey, httpsig.FormatDate(s.options.clock()))
	}

	if !req.Header.Has(message.RequestIDHeaderKey) {
		req.Header.Set(message.RequestIDHeaderKey, uuid.NewString())
	}

	IncludeDigest(req)

	d, err := httpsig.Sign(s.keyPair, req.Method, req.PathPseudoHeader(), &req.Header, httpsig.DefaultHeaders(&req.Header))
	if err != nil {
		return fault.Internal("failed to sign the request: %w", err)
	}

	req.Header.Set(message.AuthorizationHeaderKey, d.Authorization())
	req.AddNotice("Request has been signed with HttpSig.")

	return nil
}

// IncludeDigest sets the Digest header from the current body. It must be called again whenever the
// body changes after signing, followed by signing again.
func IncludeDigest(m message.Message) {
	e := m.Base()

	e.Header.Set(message.DigestHeaderKey, httpsig.Digest(e.BodyOrEmpty()))
}
