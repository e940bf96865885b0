// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewpsec/go-api-security/pkg/client"
	"github.com/ewpsec/go-api-security/pkg/coding"
	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/registry"
	"github.com/ewpsec/go-api-security/pkg/request"
	"github.com/ewpsec/go-api-security/pkg/response"
	"github.com/ewpsec/go-api-security/pkg/server"
)

type fixture struct {
	directory *registry.Static
	client    *keys.KeyPair
	server    *keys.KeyPair
	url       string
}

func setup(t *testing.T, serverKey *keys.KeyPair, opts ...server.Option) *fixture {
	t.Helper()

	clientKey, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	registered, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	if serverKey == nil {
		serverKey = registered
	}

	directory := registry.NewStatic()
	require.NoError(t, directory.AddClientKey(clientKey.Public()))

	middleware, err := server.NewMiddleware(request.NewHTTPSig(directory), response.NewHTTPSigSigner(serverKey), opts...)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/echo", middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck

		w.Header().Set("Content-Type", "text/plain")
		w.Write(body) //nolint:errcheck
	})))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	require.NoError(t, directory.AddServerKey(registered.Public(), srv.URL+"/"))

	return &fixture{
		directory: directory,
		client:    clientKey,
		server:    registered,
		url:       srv.URL + "/echo",
	}
}

func (f *fixture) transport(options client.Options) *client.Transport {
	options.Signer = request.NewHTTPSigSigner(f.client)
	options.Authorizer = response.NewHTTPSig(f.directory, f.url)
	options.AcceptSignature = []string{httpsig.AlgorithmRSASHA256}

	return client.New(options)
}

func TestTransport(t *testing.T) {
	f := setup(t, nil)

	httpClient := &http.Client{Transport: f.transport(client.Options{})}

	resp, err := httpClient.Post(f.url, "application/x-www-form-urlencoded", strings.NewReader("echo=hello"))
	require.NoError(t, err)

	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo=hello", string(body))
	assert.NotEmpty(t, resp.Header.Get("Signature"))

	// unsigned headers added by net/http are removed
	assert.Empty(t, resp.Header.Get("Content-Length"))
}

func TestTransportLeavesRequestUntouched(t *testing.T) {
	f := setup(t, nil)

	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.url, strings.NewReader("echo=hello"))
	require.NoError(t, err)

	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body := httpReq.Body
	header := httpReq.Header.Clone()

	resp, err := f.transport(client.Options{}).RoundTrip(httpReq)
	require.NoError(t, err)

	defer resp.Body.Close() //nolint:errcheck

	assert.Same(t, httpReq, resp.Request)
	assert.Equal(t, body, httpReq.Body)
	assert.Equal(t, header, httpReq.Header)
	assert.Empty(t, httpReq.Header.Get("Authorization"))
}

func TestTransportDo(t *testing.T) {
	f := setup(t, nil)

	req, err := message.NewRequest(http.MethodPost, f.url, []byte("echo=hello"))
	require.NoError(t, err)

	resp, srv, err := f.transport(client.Options{}).Do(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "server key "+f.server.ID(), srv.String())
	assert.Equal(t, "echo=hello", string(resp.Body))
	assert.Equal(t, req.Header.Get("X-Request-Id"), resp.Header.Get("X-Request-Id"))
}

func TestTransportCodings(t *testing.T) {
	decoding, err := coding.NewDecoding([]coding.Decoder{coding.Gzip{}})
	require.NoError(t, err)

	encoding, err := coding.NewEncoding([]coding.Encoder{coding.Gzip{}})
	require.NoError(t, err)

	f := setup(t, nil, server.WithDecoding(decoding), server.WithEncoding(encoding))

	req, err := message.NewRequest(http.MethodPost, f.url, []byte(strings.Repeat("echo=hello&", 100)))
	require.NoError(t, err)

	resp, _, err := f.transport(client.Options{Encoding: encoding, Decoding: decoding}).Do(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "gzip", req.Header.Get("Accept-Encoding"))
	assert.Equal(t, strings.Repeat("echo=hello&", 100), string(resp.Body))
	assert.False(t, resp.Header.Has("Content-Encoding"))
}

func TestTransportRejectsUnknownServer(t *testing.T) {
	impostor, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	f := setup(t, impostor)

	req, err := message.NewRequest(http.MethodGet, f.url, nil)
	require.NoError(t, err)

	_, _, err = f.transport(client.Options{}).Do(context.Background(), req)

	var peerErr *fault.PeerAuthenticationError
	require.ErrorAs(t, err, &peerErr)
	assert.Contains(t, peerErr.Message, "doesn't match any of the keys published in the Registry")
}

func TestTransportRequiresSigner(t *testing.T) {
	req, err := message.NewRequest(http.MethodGet, "http://example.com/echo", nil)
	require.NoError(t, err)

	_, _, err = client.New(client.Options{}).Do(context.Background(), req)
	require.Error(t, err)
}
