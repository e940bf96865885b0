// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package httpsig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Scheme is the authorization scheme prefix of signed requests.
const Scheme = "Signature"

// AlgorithmRSASHA256 is the only supported signature algorithm.
const AlgorithmRSASHA256 = "rsa-sha256"

// RequestTarget is the pseudo-header covering the method, path and query of the request.
const RequestTarget = "(request-target)"

var (
	// ErrNotSignatureScheme is returned when an Authorization header uses another scheme.
	ErrNotSignatureScheme = errors.New("authorization scheme is not Signature")

	// ErrInvalidDescriptor is returned when a signature header cannot be parsed.
	ErrInvalidDescriptor = errors.New("invalid signature parameters")
)

// Descriptor holds the parameters of an HTTP Signature.
type Descriptor struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// ParseAuthorization parses the value of an "Authorization: Signature ..." request header.
func ParseAuthorization(value string) (*Descriptor, error) {
	if !HasSignatureScheme(value) {
		return nil, ErrNotSignatureScheme
	}

	return ParseDescriptor(value[len(Scheme)+1:])
}

// HasSignatureScheme reports whether the Authorization header value uses the Signature scheme.
func HasSignatureScheme(value string) bool {
	return len(value) > len(Scheme) && strings.EqualFold(value[:len(Scheme)+1], Scheme+" ")
}

// ParseDescriptor parses the parameter list of a signature, as found in the response Signature
// header (and in the request Authorization header, after the scheme).
//
// If the headers parameter is missing, it defaults to "date".
func ParseDescriptor(value string) (*Descriptor, error) {
	params, err := parseParams(value)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		KeyID:     params["keyid"],
		Algorithm: params["algorithm"],
		Headers:   []string{"date"},
	}

	if d.KeyID == "" {
		return nil, fmt.Errorf("%w: missing keyId", ErrInvalidDescriptor)
	}

	if headers, ok := params["headers"]; ok {
		d.Headers = strings.Fields(strings.ToLower(headers))
	}

	signature, ok := params["signature"]
	if !ok || signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidDescriptor)
	}

	if d.Signature, err = base64.StdEncoding.DecodeString(signature); err != nil {
		return nil, fmt.Errorf("%w: signature is not valid base64", ErrInvalidDescriptor)
	}

	return d, nil
}

// Covers reports whether the signature covers the named header.
func (d *Descriptor) Covers(name string) bool {
	for _, h := range d.Headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}

	return false
}

// EncodedSignature returns the base64 encoded signature, as it appears on the wire.
func (d *Descriptor) EncodedSignature() string {
	return base64.StdEncoding.EncodeToString(d.Signature)
}

// String formats the descriptor as a signature parameter list.
func (d *Descriptor) String() string {
	return fmt.Sprintf(`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		d.KeyID, d.Algorithm, strings.Join(d.Headers, " "), d.EncodedSignature())
}

// Authorization formats the descriptor as an Authorization request header value.
func (d *Descriptor) Authorization() string {
	return Scheme + " " + d.String()
}

// parseParams parses `name="value"` pairs separated by commas. Names are lowercased.
func parseParams(value string) (map[string]string, error) {
	params := map[string]string{}

	rest := strings.TrimSpace(value)

	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: expected name=value", ErrInvalidDescriptor)
		}

		name := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = strings.TrimSpace(rest[eq+1:])

		var val string

		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quoted value of %q", ErrInvalidDescriptor, name)
			}

			val = rest[1 : end+1]
			rest = rest[end+2:]
		} else {
			end := strings.IndexByte(rest, ',')
			if end < 0 {
				end = len(rest)
			}

			val = strings.TrimSpace(rest[:end])
			rest = rest[end:]
		}

		if _, dup := params[name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidDescriptor, name)
		}

		params[name] = val

		rest = strings.TrimSpace(rest)

		if rest == "" {
			break
		}

		if rest[0] != ',' {
			return nil, fmt.Errorf("%w: expected a comma after %q", ErrInvalidDescriptor, name)
		}

		rest = strings.TrimSpace(rest[1:])
	}

	return params, nil
}
