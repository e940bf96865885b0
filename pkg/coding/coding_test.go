// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package coding_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewpsec/go-api-security/pkg/coding"
	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/rsaaes"
)

const body = "<response>Hello, world! Hello, world! Hello, world!</response>"

func newRequest(t *testing.T, acceptEncoding string) *message.Request {
	t.Helper()

	req, err := message.NewRequest(http.MethodPost, "https://example.com/echo", []byte("x=1"))
	require.NoError(t, err)

	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	return req
}

func TestAcceptableCodings(t *testing.T) {
	for _, tt := range []struct {
		header   string
		expected map[string]bool
	}{
		{header: "", expected: map[string]bool{"identity": true}},
		{header: "gzip, ewp-rsa-aes128gcm", expected: map[string]bool{"identity": true, "gzip": true, "ewp-rsa-aes128gcm": true}},
		{header: "gzip;q=0.5, identity;q=0", expected: map[string]bool{"gzip": true}},
		{header: "gzip, *;q=0", expected: map[string]bool{"gzip": true}},
		{header: "identity, *;q=0", expected: map[string]bool{"identity": true}},
		{header: "GZIP;q=0.0", expected: map[string]bool{"identity": true}},
	} {
		assert.Equal(t, tt.expected, coding.AcceptableCodings(tt.header), tt.header)
	}
}

func TestStack(t *testing.T) {
	resp := message.NewResponse(http.StatusOK, nil)

	coding.Push(resp, "gzip")
	coding.Push(resp, "ewp-rsa-aes128gcm")

	assert.Equal(t, "gzip, ewp-rsa-aes128gcm", resp.Header.Get("Content-Encoding"))

	outer, ok := coding.Peek(resp)
	require.True(t, ok)
	assert.Equal(t, "ewp-rsa-aes128gcm", outer)

	coding.Pop(resp)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	coding.Pop(resp)
	assert.False(t, resp.Header.Has("Content-Encoding"))
}

func TestEncodeDecodeLIFO(t *testing.T) {
	ctx := context.Background()

	clientKey, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	encodedKey, err := keys.MarshalPublicKey(clientKey.Public())
	require.NoError(t, err)

	req := newRequest(t, "gzip, ewp-rsa-aes128gcm")
	req.Header.Set("Accept-Response-Encryption-Key", encodedKey)

	encoding, err := coding.NewEncoding(
		[]coding.Encoder{coding.Gzip{}, coding.NewRSAAESEncoder(nil, nil)},
		coding.WithRequired(rsaaes.Token),
	)
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, []byte(body))
	require.NoError(t, encoding.Encode(ctx, req, resp))

	assert.Equal(t, "gzip, ewp-rsa-aes128gcm", resp.Header.Get("Content-Encoding"))
	assert.NotContains(t, string(resp.Body), "Hello")

	// the gzip decoder cannot handle the outermost coding
	assert.Error(t, coding.Gzip{}.Decode(resp))
	assert.Equal(t, "gzip, ewp-rsa-aes128gcm", resp.Header.Get("Content-Encoding"))

	decoding, err := coding.NewDecoding([]coding.Decoder{coding.Gzip{}, coding.NewRSAAESDecoder(clientKey)}, rsaaes.Token)
	require.NoError(t, err)

	require.NoError(t, decoding.DecodeResponse(req, resp))

	assert.Equal(t, body, string(resp.Body))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Len(t, resp.Notices(), 4)
}

func TestDecodeRequiredCoding(t *testing.T) {
	decoding, err := coding.NewDecoding([]coding.Decoder{coding.Gzip{}}, rsaaes.Token)
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, []byte(body))

	err = decoding.Decode(resp)

	var pe *fault.PeerAuthenticationError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, rsaaes.Token)
	assert.Equal(t, body, string(resp.Body))
}

func TestDecodeNotAcceptable(t *testing.T) {
	ctx := context.Background()

	resp := message.NewResponse(http.StatusOK, []byte(body))
	require.NoError(t, coding.Gzip{}.Encode(ctx, nil, resp))

	decoding, err := coding.NewDecoding([]coding.Decoder{coding.Gzip{}})
	require.NoError(t, err)

	err = decoding.DecodeResponse(newRequest(t, ""), resp)

	var pe *fault.PeerAuthenticationError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "didn't declare this encoding as acceptable")
}

func TestDecodeRequest(t *testing.T) {
	ctx := context.Background()

	serverKey, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	otherKey, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	decoding, err := coding.NewDecoding([]coding.Decoder{coding.Gzip{}, coding.NewRSAAESDecoder(serverKey)})
	require.NoError(t, err)

	for _, tt := range []struct {
		mutator        func(t *testing.T, req *message.Request)
		name           string
		expectedStatus int
	}{
		{
			name: "gzip and encryption",
			mutator: func(t *testing.T, req *message.Request) {
				require.NoError(t, coding.Gzip{}.Encode(ctx, req, req))
				require.NoError(t, coding.NewRSAAESEncoder(nil, serverKey.Public()).Encode(ctx, req, req))
			},
		},
		{
			name: "unsupported coding",
			mutator: func(_ *testing.T, req *message.Request) {
				req.Header.Set("Content-Encoding", "br")
			},
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name: "encrypted GET",
			mutator: func(t *testing.T, req *message.Request) {
				require.NoError(t, coding.NewRSAAESEncoder(nil, serverKey.Public()).Encode(ctx, req, req))
				req.Method = http.MethodGet
			},
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name: "missing body",
			mutator: func(_ *testing.T, req *message.Request) {
				req.Header.Set("Content-Encoding", rsaaes.Token)
				req.Body = nil
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown recipient",
			mutator: func(t *testing.T, req *message.Request) {
				require.NoError(t, coding.NewRSAAESEncoder(nil, otherKey.Public()).Encode(ctx, req, req))
			},
			expectedStatus: http.StatusBadRequest,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, "")
			tt.mutator(t, req)

			err := decoding.Decode(req)

			if tt.expectedStatus == 0 {
				require.NoError(t, err)
				assert.Equal(t, "x=1", string(req.Body))

				return
			}

			var cf *fault.ClientFault
			require.ErrorAs(t, err, &cf)
			assert.Equal(t, tt.expectedStatus, cf.Status)
		})
	}
}

type lazyDecoder struct{}

func (lazyDecoder) ContentEncoding() string { return "lazy" }

func (lazyDecoder) Decode(message.Message) error { return nil }

func TestDecoderMustPop(t *testing.T) {
	decoding, err := coding.NewDecoding([]coding.Decoder{lazyDecoder{}})
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, nil)
	coding.Push(resp, "lazy")

	var internal *fault.InternalError
	assert.ErrorAs(t, decoding.Decode(resp), &internal)
}

func TestNewDecodingRepeated(t *testing.T) {
	_, err := coding.NewDecoding([]coding.Decoder{coding.Gzip{}, coding.Gzip{}})
	assert.Error(t, err)
}

func TestEncodeRequiredNotAccepted(t *testing.T) {
	encoding, err := coding.NewEncoding(
		[]coding.Encoder{coding.Gzip{}, coding.NewRSAAESEncoder(nil, nil)},
		coding.WithRequired(rsaaes.Token),
	)
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, []byte(body))

	var cf *fault.ClientFault
	require.ErrorAs(t, encoding.Encode(context.Background(), newRequest(t, "gzip"), resp), &cf)
	assert.Equal(t, http.StatusBadRequest, cf.Status)
	assert.Equal(t, body, string(resp.Body))
}

func TestEncodeOptionalFailure(t *testing.T) {
	encoding, err := coding.NewEncoding([]coding.Encoder{coding.Gzip{}, coding.NewRSAAESEncoder(nil, nil)})
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, []byte(body))

	// no recipient key can be found, encryption is skipped
	require.NoError(t, encoding.Encode(context.Background(), newRequest(t, "gzip, ewp-rsa-aes128gcm"), resp))
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	var warnings int

	for _, n := range resp.Notices() {
		if n.Level == message.NoticeWarning {
			warnings++
		}
	}

	assert.Equal(t, 1, warnings)
}

func TestEncodeRequiredFailure(t *testing.T) {
	encoding, err := coding.NewEncoding(
		[]coding.Encoder{coding.Gzip{}, coding.NewRSAAESEncoder(nil, nil)},
		coding.WithRequired(rsaaes.Token),
	)
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, []byte(body))

	err = encoding.Encode(context.Background(), newRequest(t, "gzip, ewp-rsa-aes128gcm"), resp)

	var cf *fault.ClientFault
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, http.StatusBadRequest, cf.Status)
	assert.Contains(t, cf.Message, "Could not determine the target encryption key")
	assert.Contains(t, cf.Message, "Accept-Response-Encryption-Key header")

	for _, n := range resp.Notices() {
		assert.NotEqual(t, message.NoticeWarning, n.Level)
	}
}

func TestEncodeIdentityForbidden(t *testing.T) {
	encoding, err := coding.NewEncoding([]coding.Encoder{coding.Identity{}, coding.Gzip{}})
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, []byte(body))

	var cf *fault.ClientFault
	require.ErrorAs(t, encoding.Encode(context.Background(), newRequest(t, "identity;q=0, br"), resp), &cf)
	assert.Equal(t, http.StatusNotAcceptable, cf.Status)

	resp = message.NewResponse(http.StatusOK, []byte(body))
	require.NoError(t, encoding.Encode(context.Background(), newRequest(t, "identity;q=0, gzip"), resp))
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestNewEncodingRequiredWithoutEncoder(t *testing.T) {
	_, err := coding.NewEncoding([]coding.Encoder{coding.Gzip{}}, coding.WithRequired(rsaaes.Token))
	assert.Error(t, err)
}
