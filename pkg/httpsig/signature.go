// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package httpsig implements the HTTP Signature message canonicalization, signing and verification,
// along with the Digest, Date and X-Request-Id helpers used by the signature based schemes.
package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
)

var (
	// ErrMissingHeader is returned when a covered header is not present in the message.
	ErrMissingHeader = errors.New("missing covered header")

	// ErrUnsupportedAlgorithm is returned for algorithms other than rsa-sha256.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

	// ErrInvalidSignature is returned when the signature does not match the message.
	ErrInvalidSignature = errors.New("invalid signature")
)

// SigningString builds the canonical string covered by a signature.
//
// Each covered name produces one "name: value" line, in the given order. The (request-target)
// pseudo-header is built from the lowercased method and the path with query.
func SigningString(method, pathQuery string, header *message.Header, names []string) (string, error) {
	lines := make([]string, 0, len(names))

	for _, name := range names {
		name = strings.ToLower(name)

		if name == RequestTarget {
			lines = append(lines, RequestTarget+": "+strings.ToLower(method)+" "+pathQuery)

			continue
		}

		value, ok := header.Lookup(name)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingHeader, name)
		}

		lines = append(lines, name+": "+strings.TrimSpace(value))
	}

	return strings.Join(lines, "\n"), nil
}

// DefaultHeaders returns the (request-target) pseudo-header followed by the lowercased names of all
// headers present, which is what signers cover unless told otherwise. The signature headers
// themselves are never covered.
func DefaultHeaders(header *message.Header) []string {
	names := []string{RequestTarget}

	for _, name := range header.Names() {
		if strings.EqualFold(name, message.AuthorizationHeaderKey) || strings.EqualFold(name, message.SignatureHeaderKey) {
			continue
		}

		names = append(names, strings.ToLower(name))
	}

	return names
}

// Sign signs the given headers of a message, returning the resulting descriptor.
//
// If names is empty, only the date header is covered.
func Sign(pair *keys.KeyPair, method, pathQuery string, header *message.Header, names []string) (*Descriptor, error) {
	if len(names) == 0 {
		names = []string{"date"}
	}

	signingString, err := SigningString(method, pathQuery, header, names)
	if err != nil {
		return nil, err
	}

	hashed := sha256.Sum256([]byte(signingString))

	signature, err := rsa.SignPKCS1v15(rand.Reader, pair.Private(), crypto.SHA256, hashed[:])
	if err != nil {
		return nil, err
	}

	lowered := make([]string, 0, len(names))

	for _, name := range names {
		lowered = append(lowered, strings.ToLower(name))
	}

	return &Descriptor{
		KeyID:     pair.ID(),
		Algorithm: AlgorithmRSASHA256,
		Headers:   lowered,
		Signature: signature,
	}, nil
}

// Verify checks the descriptor's signature against the locally observed message, using pub.
func (d *Descriptor) Verify(pub *rsa.PublicKey, method, pathQuery string, header *message.Header) error {
	if !strings.EqualFold(d.Algorithm, AlgorithmRSASHA256) {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, d.Algorithm)
	}

	signingString, err := SigningString(method, pathQuery, header, d.Headers)
	if err != nil {
		return err
	}

	hashed := sha256.Sum256([]byte(signingString))

	if err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], d.Signature); err != nil {
		return ErrInvalidSignature
	}

	return nil
}
