// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package coding

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// Decoding strips the whole Content-Encoding stack of a message, outermost coding first.
type Decoding struct {
	decoders map[string]Decoder
	required []string
}

// NewDecoding creates a Decoding from the registered decoders. The required codings must be present
// on every decoded message.
func NewDecoding(decoders []Decoder, required ...string) (*Decoding, error) {
	d := &Decoding{
		decoders: make(map[string]Decoder, len(decoders)),
	}

	for _, decoder := range decoders {
		token := strings.ToLower(decoder.ContentEncoding())

		if _, ok := d.decoders[token]; ok {
			return nil, fmt.Errorf("repeated coding: %s", token)
		}

		d.decoders[token] = decoder
	}

	for _, token := range required {
		d.required = append(d.required, strings.ToLower(token))
	}

	return d, nil
}

// ContentEncodings returns the tokens of all decoders, sorted. It is suitable for an Accept-Encoding header.
func (d *Decoding) ContentEncodings() []string {
	tokens := make([]string, 0, len(d.decoders))

	for token := range d.decoders {
		tokens = append(tokens, token)
	}

	sort.Strings(tokens)

	return tokens
}

// Decode strips every coding of m.
func (d *Decoding) Decode(m message.Message) error {
	return d.decode(m, nil)
}

// DecodeResponse strips every coding of resp, additionally requiring each coding to be acceptable
// according to the Accept-Encoding header of req.
func (d *Decoding) DecodeResponse(req *message.Request, resp *message.Response) error {
	return d.decode(resp, AcceptableCodings(req.Header.Get(message.AcceptEncodingHeaderKey)))
}

func (d *Decoding) decode(m message.Message, acceptable map[string]bool) error {
	unsatisfied := map[string]bool{}

	for _, token := range d.required {
		unsatisfied[token] = true
	}

	for {
		tokens := Stack(m)
		if len(tokens) == 0 {
			break
		}

		token := strings.ToLower(tokens[len(tokens)-1])

		decoder, ok := d.decoders[token]
		if !ok {
			if _, isResponse := m.(*message.Response); isResponse {
				return fault.Peer("Unsupported Content-Encoding: %s", token)
			}

			return fault.New(http.StatusUnsupportedMediaType, "Could not decode your request. Unsupported Content-Encoding: %s", token)
		}

		if err := decoder.Decode(m); err != nil {
			return err
		}

		if len(Stack(m)) != len(tokens)-1 {
			return fault.Internal("the %s decoder did not pop its own coding from the Content-Encoding header", token)
		}

		delete(unsatisfied, token)

		if acceptable != nil && !acceptable[token] {
			return fault.ForMessage(m, http.StatusBadRequest,
				"The %s was (successfully) encoded with the '%s' coding, but the client didn't declare this encoding as acceptable "+
					"(it wasn't allowed in the Accept-Encoding header).", side(m), token)
		}
	}

	if len(unsatisfied) > 0 {
		missing := make([]string, 0, len(unsatisfied))

		for token := range unsatisfied {
			missing = append(missing, token)
		}

		sort.Strings(missing)

		return fault.ForMessage(m, http.StatusUnsupportedMediaType, "Expecting the %s to be encoded with %s", side(m), strings.Join(missing, " and "))
	}

	return nil
}
