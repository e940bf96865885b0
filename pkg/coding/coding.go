// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package coding implements the Content-Encoding pipeline: single-coding encoders and decoders,
// and the orchestrators which apply or strip a whole stack of codings.
//
// The Content-Encoding header lists codings in the order they were applied, so the rightmost
// token is the outermost one and is always removed first.
package coding

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// IdentityToken is the name of the no-op coding.
const IdentityToken = "identity"

// Decoder strips a single coding from a message.
//
// On success, Decode removes exactly its own token from the Content-Encoding stack and replaces the
// body. On failure the message is left untouched.
type Decoder interface {
	ContentEncoding() string
	Decode(m message.Message) error
}

// Encoder applies a single coding to a message.
//
// The request is passed so that encoders of a response can inspect what the client asked for.
// When a request itself is being encoded, m is req.
type Encoder interface {
	ContentEncoding() string
	Encode(ctx context.Context, req *message.Request, m message.Message) error
}

// Stack returns the Content-Encoding tokens of the message, in application order.
func Stack(m message.Message) []string {
	return message.CommaSeparatedTokens(m.Base().Header.Get(message.ContentEncodingHeaderKey))
}

// Peek returns the outermost coding of the message.
func Peek(m message.Message) (string, bool) {
	tokens := Stack(m)
	if len(tokens) == 0 {
		return "", false
	}

	return tokens[len(tokens)-1], true
}

// Push appends a coding to the Content-Encoding stack.
func Push(m message.Message, token string) {
	tokens := append(Stack(m), token)

	m.Base().Header.Set(message.ContentEncodingHeaderKey, strings.Join(tokens, ", "))
}

// Pop removes the outermost coding. The header is removed once the stack is empty.
func Pop(m message.Message) {
	tokens := Stack(m)
	if len(tokens) == 0 {
		return
	}

	tokens = tokens[:len(tokens)-1]

	if len(tokens) == 0 {
		m.Base().Header.Del(message.ContentEncodingHeaderKey)

		return
	}

	m.Base().Header.Set(message.ContentEncodingHeaderKey, strings.Join(tokens, ", "))
}

// ExpectOutermost verifies that the outermost coding of m is token.
func ExpectOutermost(m message.Message, token string) error {
	actual, ok := Peek(m)
	if !ok {
		return fault.ForMessage(m, http.StatusUnsupportedMediaType,
			"Expecting Content-Encoding to be %s, but no encoding found.", token)
	}

	if !strings.EqualFold(actual, token) {
		return fault.ForMessage(m, http.StatusUnsupportedMediaType,
			"Expecting Content-Encoding to be %s, but %s found instead.", token, actual)
	}

	return nil
}

// AcceptableCodings parses an Accept-Encoding header value into the set of acceptable codings.
//
// Identity is acceptable unless forbidden with "identity;q=0", or with "*;q=0" when identity was
// not explicitly listed before it. A coding with q=0 is removed.
func AcceptableCodings(acceptEncoding string) map[string]bool {
	result := map[string]bool{IdentityToken: true}
	identityExplicitlyAdded := false

	for _, entry := range message.CommaSeparatedTokens(strings.ToLower(acceptEncoding)) {
		var params []string

		for _, p := range strings.Split(entry, ";") {
			if p = strings.TrimSpace(p); p != "" {
				params = append(params, p)
			}
		}

		if len(params) == 0 {
			continue
		}

		coding := params[0]
		acceptable := !isZeroQuality(params[1:])

		switch {
		case coding == "*":
			if !acceptable && !identityExplicitlyAdded {
				delete(result, IdentityToken)
			}
		case acceptable:
			result[coding] = true

			if coding == IdentityToken {
				identityExplicitlyAdded = true
			}
		default:
			delete(result, coding)
		}
	}

	return result
}

func isZeroQuality(params []string) bool {
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) != "q" {
			continue
		}

		if q, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && q == 0 {
			return true
		}
	}

	return false
}
