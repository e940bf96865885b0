// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package message contains the in-memory HTTP request and response model shared by every
// pipeline stage, plus adapters to and from net/http.
package message

// Header names used across the security pipeline.
const (
	AuthorizationHeaderKey               = "Authorization"
	SignatureHeaderKey                   = "Signature"
	DigestHeaderKey                      = "Digest"
	DateHeaderKey                        = "Date"
	OriginalDateHeaderKey                = "Original-Date"
	RequestIDHeaderKey                   = "X-Request-Id"
	RequestSignatureHeaderKey            = "X-Request-Signature"
	HostHeaderKey                        = "Host"
	WWWAuthenticateHeaderKey             = "WWW-Authenticate"
	WantDigestHeaderKey                  = "Want-Digest"
	AcceptSignatureHeaderKey             = "Accept-Signature"
	AcceptEncodingHeaderKey              = "Accept-Encoding"
	ContentEncodingHeaderKey             = "Content-Encoding"
	ContentTypeHeaderKey                 = "Content-Type"
	AcceptResponseEncryptionKeyHeaderKey = "Accept-Response-Encryption-Key"
)

// MaxBodySize limits how much of a body is read from the wire (DoS protection).
const MaxBodySize = 16 * 1024 * 1024
