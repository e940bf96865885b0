// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package response

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/registry"
)

// HTTPSig authorizes responses signed with an HTTP Signature made with a server key registered for
// the endpoint the request was sent to.
type HTTPSig struct {
	directory registry.Directory
	endpoint  string
	options   options
}

// NewHTTPSig creates an HTTPSig authorizer for responses of the given endpoint.
func NewHTTPSig(directory registry.Directory, endpoint string, opts ...Option) *HTTPSig {
	return &HTTPSig{
		directory: directory,
		endpoint:  endpoint,
		options:   newOptions(opts),
	}
}

func (a *HTTPSig) String() string {
	return "EWP HTTP Signature Response Authorizer"
}

// Authorize implements Authorizer.
func (a *HTTPSig) Authorize(ctx context.Context, req *message.Request, resp *message.Response) (identity.Server, error) {
	if err := verifyRequestID(req, resp); err != nil {
		return nil, err
	}

	if req.Header.Has(message.RequestIDHeaderKey) && !resp.Header.Has(message.RequestIDHeaderKey) {
		return nil, fault.Peer("HTTP Signature Server Authentication requires the server to include the correlated " +
			"(and signed) X-Request-Id, whenever it has been included in the request.")
	}

	value, ok := resp.Header.Lookup(message.SignatureHeaderKey)
	if !ok {
		return nil, fault.Peer("Expecting the response to contain the Signature header")
	}

	d, err := httpsig.ParseDescriptor(value)
	if err != nil {
		return nil, fault.Peer("Could not parse response's Signature header, make sure it's in a proper format")
	}

	if d.Algorithm != httpsig.AlgorithmRSASHA256 {
		return nil, fault.Peer("Expecting the response's Signature to use the %s algorithm, but %s found instead.",
			httpsig.AlgorithmRSASHA256, d.Algorithm)
	}

	if err = verifyRequiredHeadersAreSigned(resp, d); err != nil {
		return nil, err
	}

	if err = verifyRequestSignatureMatches(req, resp); err != nil {
		return nil, err
	}

	if err = a.verifyDates(resp); err != nil {
		return nil, err
	}

	serverKey, err := a.lookupServerKey(ctx, d.KeyID)
	if err != nil {
		return nil, err
	}

	if err = d.Verify(serverKey, req.Method, req.PathPseudoHeader(), &resp.Header); err != nil {
		return nil, fault.Peer("Invalid HTTP Signature in response: %s", err)
	}

	if err = verifyDigest(resp); err != nil {
		return nil, err
	}

	server := identity.RSAKeyServer{PublicKey: serverKey}

	resp.AddNotice("Response has been successfully authenticated with HttpSig. Server identified: %s", server)

	var removed []string

	for _, name := range resp.Header.Names() {
		if d.Covers(name) || strings.EqualFold(name, message.SignatureHeaderKey) {
			continue
		}

		resp.Header.Del(name)
		removed = append(removed, name)
	}

	if len(removed) > 0 {
		resp.AddNotice("The following headers were removed, because they weren't covered by HTTP Signature: %s.", strings.Join(removed, ", "))
	}

	return server, nil
}

func verifyRequiredHeadersAreSigned(resp *message.Response, d *httpsig.Descriptor) error {
	required := []string{"digest"}

	if resp.Header.Has(message.RequestIDHeaderKey) {
		required = append(required, "x-request-id")
	}

	if resp.Header.Has(message.RequestSignatureHeaderKey) {
		required = append(required, "x-request-signature")
	}

	for _, name := range required {
		if !d.Covers(name) {
			return fault.Peer(`Expecting the response's Signature to cover the "%s" header, but it doesn't.`, name)
		}
	}

	if !d.Covers(message.DateHeaderKey) && !d.Covers(message.OriginalDateHeaderKey) {
		return fault.Peer(`Expecting the response's Signature to cover the "date" header or the "original-date" header (or both), ` +
			"but it doesn't cover any of them.")
	}

	return nil
}

func verifyRequestSignatureMatches(req *message.Request, resp *message.Response) error {
	reqSignature, reqSigned := requestSignature(req)

	value, ok := resp.Header.Lookup(message.RequestSignatureHeaderKey)

	switch {
	case ok && !reqSigned:
		return fault.Peer("X-Request-Signature response header should be present only " +
			"when HTTP Signature Client Authentication has been used in the request.")
	case ok && value != reqSignature:
		return fault.Peer("X-Request-Signature response header doesn't match the actual HTTP Signature of the original request")
	case !ok && reqSigned:
		return fault.Peer("Missing X-Request-Signature response header.")
	}

	return nil
}

func (a *HTTPSig) verifyDates(resp *message.Response) error {
	var present []string

	for _, name := range []string{message.DateHeaderKey, message.OriginalDateHeaderKey} {
		if resp.Header.Has(name) {
			present = append(present, name)
		}
	}

	if len(present) == 0 {
		return fault.Peer(`Expecting the response to contain the "Date" header or the "Original-Date" (or both).`)
	}

	now := a.options.clock()

	for _, name := range present {
		if err := httpsig.CheckDate(resp.Header.Get(name), now, a.options.skew); err != nil {
			return fault.Peer(`The value of response's "%s" header failed verification: %s`, name, err)
		}
	}

	return nil
}

// lookupServerKey resolves the key, accepting only server keys which cover the endpoint.
func (a *HTTPSig) lookupServerKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	key, err := a.directory.FindRSAPublicKey(ctx, keyID)

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return nil, fault.Peer("The keyId extracted from the response's Signature header doesn't match any of the keys published in the Registry")
	case err != nil:
		return nil, fault.Internal("directory lookup failed: %w", err)
	}

	covered, err := a.directory.IsAPICoveredByServerKey(ctx, a.endpoint, key)
	if err != nil {
		return nil, fault.Internal("directory lookup failed: %w", err)
	}

	if !covered {
		return nil, fault.Peer("The keyId extracted from the response's Signature header has been found in the Registry, "+
			"but it doesn't cover the %s endpoint which has generated the response. "+
			"Make sure that you have included your key in a proper manifest section.", a.endpoint)
	}

	return key, nil
}

func verifyDigest(resp *message.Response) error {
	value, ok := resp.Header.Lookup(message.DigestHeaderKey)
	if !ok {
		return fault.Peer("Missing response header: Digest")
	}

	switch err := httpsig.VerifyDigest(value, resp.BodyOrEmpty()); {
	case errors.Is(err, httpsig.ErrDigestMissing):
		return fault.Peer("Missing SHA-256 digest in Digest header")
	case err != nil:
		return fault.Peer("Response SHA-256 digest mismatch. Expected: %s", httpsig.DigestBase64(resp.BodyOrEmpty()))
	}

	return nil
}

// requestSignature extracts the signature value from the request's Authorization header.
func requestSignature(req *message.Request) (string, bool) {
	d, err := httpsig.ParseAuthorization(req.Header.Get(message.AuthorizationHeaderKey))
	if err != nil {
		return "", false
	}

	return d.EncodedSignature(), true
}

// HTTPSigSigner signs responses with an HTTP Signature.
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
	return "EWP HTTP Signature Response Signer"
}

// WasRequestedFor implements Signer. The client asks for signed responses with the Accept-Signature header.
func (s *HTTPSigSigner) WasRequestedFor(req *message.Request) bool {
	for _, token := range message.CommaSeparatedTokens(req.Header.Get(message.AcceptSignatureHeaderKey)) {
		if strings.EqualFold(token, httpsig.AlgorithmRSASHA256) {
			return true
		}
	}

	return false
}

// Sign implements Signer.
//
// Missing date headers, Digest, the X-Request-Id echo and X-Request-Signature are added first, then
// the Signature header covering them.
func (s *HTTPSigSigner) Sign(_ context.Context, req *message.Request, resp *message.Response) error {
	now := httpsig.FormatDate(s.options.clock())

	if s.options.date && !resp.Header.Has(message.DateHeaderKey) {
		resp.Header.Set(message.DateHeaderKey, now)
	}

	if s.options.originalDate && !resp.Header.Has(message.OriginalDateHeaderKey) {
		resp.Header.Set(message.OriginalDateHeaderKey, now)
	}

	resp.Header.Set(message.DigestHeaderKey, httpsig.Digest(resp.BodyOrEmpty()))

	includeRequestID(req, resp)

	if !resp.Header.Has(message.RequestSignatureHeaderKey) {
		if signature, ok := requestSignature(req); ok {
			resp.Header.Set(message.RequestSignatureHeaderKey, signature)
		}
	}

	names := s.options.signedHeaders
	if names == nil {
		names = httpsig.DefaultHeaders(&resp.Header)
	}

	d, err := httpsig.Sign(s.keyPair, req.Method, req.PathPseudoHeader(), &resp.Header, names)
	if err != nil {
		return fault.Internal("failed to sign the response: %w", err)
	}

	resp.Header.Set(message.SignatureHeaderKey, d.String())

	return nil
}
