// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package coding

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/registry"
	"github.com/ewpsec/go-api-security/pkg/rsaaes"
)

// RSAAESDecoder strips the ewp-rsa-aes128gcm coding, using whichever of its key pairs the body
// was encrypted for.
type RSAAESDecoder struct {
	keyPairs []*keys.KeyPair
}

// NewRSAAESDecoder creates a decoder able to decrypt bodies encrypted for any of the key pairs.
func NewRSAAESDecoder(keyPairs ...*keys.KeyPair) *RSAAESDecoder {
	return &RSAAESDecoder{keyPairs: keyPairs}
}

// ContentEncoding implements Decoder.
func (d *RSAAESDecoder) ContentEncoding() string {
	return rsaaes.Token
}

func (d *RSAAESDecoder) String() string {
	return rsaaes.Token + " decoder"
}

// Decode implements Decoder.
func (d *RSAAESDecoder) Decode(m message.Message) error {
	req, isRequest := m.(*message.Request)

	if isRequest && req.Method == http.MethodGet {
		return fault.New(http.StatusMethodNotAllowed, "%s Content-Encoding requires POST requests to be used.", rsaaes.Token)
	}

	if err := ExpectOutermost(m, rsaaes.Token); err != nil {
		return err
	}

	e := m.Base()

	if isRequest && e.Body == nil {
		return fault.New(http.StatusBadRequest, "Missing request body. Cannot decode %s.", rsaaes.Token)
	}

	pair, err := d.chooseKey(e.BodyOrEmpty())
	if err != nil {
		return fault.ForMessage(m, http.StatusBadRequest, "Could not decode the %s. Invalid %s body.", side(m), rsaaes.Token)
	}

	if pair == nil {
		return fault.ForMessage(m, http.StatusBadRequest, "We cannot decrypt this %s. Unknown recipient key.", side(m))
	}

	body, err := rsaaes.Decrypt(pair, e.BodyOrEmpty())
	if err != nil {
		return fault.ForMessage(m, http.StatusBadRequest, "Could not decode the %s. Invalid %s body.", side(m), rsaaes.Token)
	}

	e.Body = body
	Pop(m)
	e.AddNotice("Successfully stripped the %s Content-Encoding.", rsaaes.Token)

	return nil
}

func (d *RSAAESDecoder) chooseKey(body []byte) (*keys.KeyPair, error) {
	recipient, err := rsaaes.RecipientFingerprint(body)
	if err != nil {
		return nil, err
	}

	for _, pair := range d.keyPairs {
		fingerprint, err := keys.FingerprintSHA256(pair.Public())
		if err != nil {
			return nil, err
		}

		if bytes.Equal(fingerprint, recipient) {
			return pair, nil
		}
	}

	return nil, nil //nolint:nilnil
}

// RSAAESEncoder applies the ewp-rsa-aes128gcm coding.
//
// When encoding a response, the recipient is taken from the request's Accept-Response-Encryption-Key
// header, then from the key which signed the request, then the default recipient. When encoding a
// request, the default recipient is used.
type RSAAESEncoder struct {
	directory registry.Directory
	recipient *rsa.PublicKey
}

// NewRSAAESEncoder creates an encoder. Both arguments are optional.
func NewRSAAESEncoder(directory registry.Directory, defaultRecipient *rsa.PublicKey) *RSAAESEncoder {
	return &RSAAESEncoder{
		directory: directory,
		recipient: defaultRecipient,
	}
}

// ContentEncoding implements Encoder.
func (enc *RSAAESEncoder) ContentEncoding() string {
	return rsaaes.Token
}

func (enc *RSAAESEncoder) String() string {
	return rsaaes.Token + " encoder"
}

// Encode implements Encoder.
func (enc *RSAAESEncoder) Encode(ctx context.Context, req *message.Request, m message.Message) error {
	recipient, err := enc.recipientFor(ctx, req, m)
	if err != nil {
		return err
	}

	e := m.Base()

	body, err := rsaaes.Encrypt(recipient, e.BodyOrEmpty())
	if err != nil {
		return fault.Internal("failed to encrypt the body: %w", err)
	}

	e.Body = body
	Push(m, rsaaes.Token)
	e.AddNotice("Successfully applied the %s Content-Encoding.", rsaaes.Token)

	return nil
}

func (enc *RSAAESEncoder) recipientFor(ctx context.Context, req *message.Request, m message.Message) (*rsa.PublicKey, error) {
	sources := []string{"configured default key"}

	if _, isResponse := m.(*message.Response); isResponse {
		sources = []string{"Accept-Response-Encryption-Key header", "HTTPSIG's Authorization header", "configured default key"}

		if value, ok := req.Header.Lookup(message.AcceptResponseEncryptionKeyHeaderKey); ok {
			key, err := keys.ParsePublicKey([]byte(value))
			if err != nil {
				return nil, fault.New(http.StatusBadRequest, "The %s header, when present, must contain a valid Base64-encoded RSA public key.",
					message.AcceptResponseEncryptionKeyHeaderKey)
			}

			return key, nil
		}

		if d, err := httpsig.ParseAuthorization(req.Header.Get(message.AuthorizationHeaderKey)); err == nil && enc.directory != nil {
			key, err := enc.directory.FindRSAPublicKey(ctx, d.KeyID)

			switch {
			case errors.Is(err, registry.ErrNotFound):
				return nil, fault.New(http.StatusBadRequest, "Could not find the key body for keyId used in the Authorization header "+
					"(our registry client doesn't recognize it). We cannot use it for encryption.")
			case err != nil:
				return nil, fault.Internal("directory lookup failed: %w", err)
			}

			return key, nil
		}
	}

	if enc.recipient != nil {
		return enc.recipient, nil
	}

	return nil, fault.New(http.StatusBadRequest, "Could not determine the target encryption key. We have looked in the following places: %s.",
		strings.Join(sources, ", "))
}

func side(m message.Message) string {
	if _, ok := m.(*message.Response); ok {
		return "response"
	}

	return "request"
}
