// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package message_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewpsec/go-api-security/pkg/message"
)

func TestFromHTTPRequest(t *testing.T) {
	const body = "hello world"

	r := httptest.NewRequest(http.MethodPost, "/echo?x=1", bytes.NewReader([]byte(body)))
	r.Host = "example.com"
	r.Header.Set("X-Request-Id", "id")

	cert := &x509.Certificate{Raw: []byte("cert")}
	r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}

	req, err := message.FromHTTPRequest(r)
	require.NoError(t, err)

	assert.Equal(t, "https", req.URL.Scheme)
	assert.Equal(t, "example.com", req.Header.Get("host"))
	assert.Equal(t, "id", req.Header.Get("x-request-id"))
	assert.Equal(t, "/echo?x=1", req.PathPseudoHeader())
	assert.Equal(t, body, string(req.Body))
	assert.Same(t, cert, req.ClientCertificate)
	assert.True(t, req.IsHTTPS())

	// the body can still be read by further handlers
	rest, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))
}

func TestRequestToHTTP(t *testing.T) {
	req, err := message.NewRequest("post", "https://example.com/path", []byte("data"))
	require.NoError(t, err)

	req.Header.Set("Host", "example.com")
	req.Header.Set("Digest", "SHA-256=abc")

	httpReq, err := req.ToHTTP(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.Equal(t, "example.com", httpReq.Host)
	assert.Equal(t, "SHA-256=abc", httpReq.Header.Get("Digest"))
	assert.Empty(t, httpReq.Header.Get("Host"))

	data, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestResponseRoundTrip(t *testing.T) {
	resp := message.NewResponse(http.StatusTeapot, []byte("short and stout"))
	resp.Header.Set("Signature", "keyId=\"x\"")

	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteTo(rec))

	parsed, err := message.FromHTTPResponse(rec.Result())
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, parsed.Status)
	assert.Equal(t, "keyId=\"x\"", parsed.Header.Get("signature"))
	assert.Equal(t, "short and stout", string(parsed.Body))
}

func TestNewRequestRejectsRelativeURL(t *testing.T) {
	_, err := message.NewRequest(http.MethodGet, "/relative", nil)
	assert.Error(t, err)
}
