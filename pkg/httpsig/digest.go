// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package httpsig

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// DigestAlgorithmSHA256 is the only digest algorithm which is validated.
const DigestAlgorithmSHA256 = "SHA-256"

var (
	// ErrDigestMissing is returned when there is no SHA-256 digest to check.
	ErrDigestMissing = errors.New("missing SHA-256 digest")

	// ErrDigestMismatch is returned when the digest does not match the body.
	ErrDigestMismatch = errors.New("digest mismatch")
)

// DigestBase64 returns the base64 encoded SHA-256 digest of the body.
func DigestBase64(body []byte) string {
	sum := sha256.Sum256(body)

	return base64.StdEncoding.EncodeToString(sum[:])
}

// Digest returns the Digest header value for the body.
func Digest(body []byte) string {
	return DigestAlgorithmSHA256 + "=" + DigestBase64(body)
}

// ParseDigest splits a (possibly comma-joined) Digest header value into algorithm/value pairs.
// Algorithm names are uppercased.
func ParseDigest(value string) map[string]string {
	digests := map[string]string{}

	for _, part := range strings.Split(value, ",") {
		alg, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		digests[strings.ToUpper(strings.TrimSpace(alg))] = strings.TrimSpace(val)
	}

	return digests
}

// VerifyDigest checks the SHA-256 entry of a Digest header value against the body.
// Entries for other algorithms are ignored.
func VerifyDigest(value string, body []byte) error {
	got, ok := ParseDigest(value)[DigestAlgorithmSHA256]
	if !ok {
		return ErrDigestMissing
	}

	if got != DigestBase64(body) {
		return ErrDigestMismatch
	}

	return nil
}
