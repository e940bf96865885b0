// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package coding

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/message"
)

// GzipToken is the name of the gzip coding.
const GzipToken = "gzip"

// Gzip is the gzip coding. It is both an Encoder and a Decoder.
type Gzip struct{}

// ContentEncoding implements Encoder and Decoder.
func (Gzip) ContentEncoding() string {
	return GzipToken
}

func (Gzip) String() string {
	return "gzip coding"
}

// Encode implements Encoder.
func (Gzip) Encode(_ context.Context, _ *message.Request, m message.Message) error {
	e := m.Base()

	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)

	if _, err := w.Write(e.BodyOrEmpty()); err != nil {
		return fault.Internal("failed to compress the body: %w", err)
	}

	if err := w.Close(); err != nil {
		return fault.Internal("failed to compress the body: %w", err)
	}

	e.Body = buf.Bytes()
	Push(m, GzipToken)
	e.AddNotice("Successfully applied the %s Content-Encoding.", GzipToken)

	return nil
}

// Decode implements Decoder.
func (Gzip) Decode(m message.Message) error {
	if err := ExpectOutermost(m, GzipToken); err != nil {
		return err
	}

	e := m.Base()

	r, err := gzip.NewReader(bytes.NewReader(e.BodyOrEmpty()))
	if err != nil {
		return fault.ForMessage(m, http.StatusBadRequest, "Could not decode the gzip body: %s", err)
	}

	defer r.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(r, message.MaxBodySize+1))
	if err != nil {
		return fault.ForMessage(m, http.StatusBadRequest, "Could not decode the gzip body: %s", err)
	}

	if len(body) > message.MaxBodySize {
		return fault.ForMessage(m, http.StatusRequestEntityTooLarge, "Decoded body exceeds %d bytes.", message.MaxBodySize)
	}

	e.Body = body
	Pop(m)
	e.AddNotice("Successfully stripped the %s Content-Encoding.", GzipToken)

	return nil
}

// Identity is the no-op coding. Listing it among encoders makes uncoded responses acceptable.
type Identity struct{}

// ContentEncoding implements Encoder.
func (Identity) ContentEncoding() string {
	return IdentityToken
}

// Encode implements Encoder.
func (Identity) Encode(context.Context, *message.Request, message.Message) error {
	return nil
}
