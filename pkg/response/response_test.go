// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package response_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewpsec/go-api-security/pkg/fault"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/identity"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/registry"
	"github.com/ewpsec/go-api-security/pkg/request"
	"github.com/ewpsec/go-api-security/pkg/response"
)

const endpoint = "https://example.com/echo"

type fixture struct {
	directory *registry.Static
	client    *keys.KeyPair
	server    *keys.KeyPair
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	client, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	server, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	directory := registry.NewStatic()
	require.NoError(t, directory.AddClientKey(client.Public()))
	require.NoError(t, directory.AddServerKey(server.Public(), endpoint))

	return &fixture{
		directory: directory,
		client:    client,
		server:    server,
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) exchange(t *testing.T, pair *keys.KeyPair, opts ...response.Option) (*message.Request, *message.Response) {
	t.Helper()

	req, err := message.NewRequest(http.MethodPost, endpoint+"?x=1", []byte("echo=hello"))
	require.NoError(t, err)

	req.Header.Set("Accept-Signature", "rsa-sha256")
	require.NoError(t, request.NewHTTPSigSigner(f.client, request.WithClock(f.clock)).Sign(context.Background(), req))

	resp := message.NewResponse(http.StatusOK, []byte("<response>hello</response>"))
	resp.Header.Set("Content-Type", "text/xml")

	opts = append([]response.Option{response.WithClock(f.clock)}, opts...)
	require.NoError(t, response.NewHTTPSigSigner(pair, opts...).Sign(context.Background(), req, resp))

	return req, resp
}

func TestHTTPSigSignerAddsHeaders(t *testing.T) {
	f := newFixture(t)
	req, resp := f.exchange(t, f.server, response.WithDateHeaders(true, true))

	assert.Equal(t, "Wed, 01 May 2024 12:00:00 GMT", resp.Header.Get("Date"))
	assert.Equal(t, "Wed, 01 May 2024 12:00:00 GMT", resp.Header.Get("Original-Date"))
	assert.Equal(t, req.Header.Get("X-Request-Id"), resp.Header.Get("X-Request-Id"))
	assert.Equal(t, httpsig.Digest(resp.Body), resp.Header.Get("Digest"))

	reqDescriptor, err := httpsig.ParseAuthorization(req.Header.Get("Authorization"))
	require.NoError(t, err)
	assert.Equal(t, reqDescriptor.EncodedSignature(), resp.Header.Get("X-Request-Signature"))

	d, err := httpsig.ParseDescriptor(resp.Header.Get("Signature"))
	require.NoError(t, err)

	assert.Equal(t, f.server.ID(), d.KeyID)
	assert.Equal(t, []string{
		"(request-target)", "content-type", "date", "original-date", "digest", "x-request-id", "x-request-signature",
	}, d.Headers)
}

func TestHTTPSigAuthorizer(t *testing.T) {
	f := newFixture(t)

	for _, tt := range []struct {
		mutator         func(t *testing.T, req *message.Request, resp *message.Response)
		name            string
		endpoint        string
		expectedMessage string
	}{
		{
			name: "valid",
		},
		{
			name: "not signed",
			mutator: func(_ *testing.T, _ *message.Request, resp *message.Response) {
				resp.Header.Del("Signature")
			},
			expectedMessage: "Expecting the response to contain the Signature header",
		},
		{
			name: "garbage signature",
			mutator: func(_ *testing.T, _ *message.Request, resp *message.Response) {
				resp.Header.Set("Signature", "garbage")
			},
			expectedMessage: "Could not parse response's Signature header",
		},
		{
			name: "request id mismatch",
			mutator: func(_ *testing.T, _ *message.Request, resp *message.Response) {
				resp.Header.Set("X-Request-Id", "5e8b5b43-2a1c-4c1e-9d0a-8e2a4c0d1f00")
			},
			expectedMessage: "exactly the same X-Request-Id",
		},
		{
			name: "request signature mismatch",
			mutator: func(_ *testing.T, _ *message.Request, resp *message.Response) {
				resp.Header.Set("X-Request-Signature", "Zm9v")
			},
			expectedMessage: "X-Request-Signature response header doesn't match",
		},
		{
			name: "body altered",
			mutator: func(_ *testing.T, _ *message.Request, resp *message.Response) {
				resp.Body = []byte("<response>bye</response>")
			},
			expectedMessage: "Response SHA-256 digest mismatch",
		},
		{
			name: "covered header altered",
			mutator: func(_ *testing.T, _ *message.Request, resp *message.Response) {
				resp.Header.Set("Content-Type", "text/plain")
			},
			expectedMessage: "Invalid HTTP Signature in response",
		},
		{
			name: "signed with client key",
			mutator: func(t *testing.T, req *message.Request, resp *message.Response) {
				resp.Header.Del("Signature")
				require.NoError(t, response.NewHTTPSigSigner(f.client, response.WithClock(f.clock)).Sign(context.Background(), req, resp))
			},
			expectedMessage: "doesn't cover the " + endpoint + " endpoint",
		},
		{
			name:            "other endpoint",
			endpoint:        "https://example.com/other",
			expectedMessage: "doesn't cover the https://example.com/other endpoint",
		},
		{
			name: "unknown key",
			mutator: func(t *testing.T, req *message.Request, resp *message.Response) {
				stranger, err := keys.GenerateKeyPair()
				require.NoError(t, err)

				resp.Header.Del("Signature")
				require.NoError(t, response.NewHTTPSigSigner(stranger, response.WithClock(f.clock)).Sign(context.Background(), req, resp))
			},
			expectedMessage: "doesn't match any of the keys published in the Registry",
		},
		{
			name: "stale date",
			mutator: func(t *testing.T, req *message.Request, resp *message.Response) {
				resp.Header.Del("Signature")
				resp.Header.Set("Date", httpsig.FormatDate(f.now.Add(-time.Hour)))
				require.NoError(t, response.NewHTTPSigSigner(f.server).Sign(context.Background(), req, resp))
			},
			expectedMessage: `The value of response's "Date" header failed verification`,
		},
		{
			name: "digest not covered",
			mutator: func(t *testing.T, req *message.Request, resp *message.Response) {
				resp.Header.Del("Signature")
				require.NoError(t, response.NewHTTPSigSigner(f.server,
					response.WithClock(f.clock),
					response.WithSignedHeaders("date", "x-request-id", "x-request-signature"),
				).Sign(context.Background(), req, resp))
			},
			expectedMessage: `cover the "digest" header`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req, resp := f.exchange(t, f.server)

			if tt.mutator != nil {
				tt.mutator(t, req, resp)
			}

			ep := endpoint
			if tt.endpoint != "" {
				ep = tt.endpoint
			}

			server, err := response.NewHTTPSig(f.directory, ep, response.WithClock(f.clock)).Authorize(context.Background(), req, resp)

			if tt.expectedMessage == "" {
				require.NoError(t, err)

				rsaServer, ok := server.(identity.RSAKeyServer)
				require.True(t, ok)
				assert.True(t, f.server.Public().Equal(rsaServer.PublicKey))

				return
			}

			var peerErr *fault.PeerAuthenticationError
			require.ErrorAs(t, err, &peerErr)
			assert.Contains(t, peerErr.Message, tt.expectedMessage)
		})
	}
}

func TestHTTPSigAuthorizerStripsUnsignedHeaders(t *testing.T) {
	f := newFixture(t)
	req, resp := f.exchange(t, f.server)

	resp.Header.Set("X-Injected", "evil")

	_, err := response.NewHTTPSig(f.directory, endpoint, response.WithClock(f.clock)).Authorize(context.Background(), req, resp)
	require.NoError(t, err)

	assert.False(t, resp.Header.Has("X-Injected"))
	assert.True(t, resp.Header.Has("Signature"))
	assert.True(t, resp.Header.Has("Content-Type"))

	notices := resp.Notices()
	require.Len(t, notices, 2)
	assert.Contains(t, notices[0].Text, "Server identified: server key "+f.server.ID())
	assert.Equal(t, "The following headers were removed, because they weren't covered by HTTP Signature: X-Injected.", notices[1].Text)
}

func TestHTTPSigAuthorizerRequiresRequestID(t *testing.T) {
	f := newFixture(t)
	req, resp := f.exchange(t, f.server)

	resp.Header.Del("X-Request-Id")

	_, err := response.NewHTTPSig(f.directory, endpoint, response.WithClock(f.clock)).Authorize(context.Background(), req, resp)

	var peerErr *fault.PeerAuthenticationError
	require.ErrorAs(t, err, &peerErr)
	assert.Contains(t, peerErr.Message, "requires the server to include the correlated")
}

func TestTLS(t *testing.T) {
	req, err := message.NewRequest(http.MethodGet, "https://example.com/echo", nil)
	require.NoError(t, err)

	req.Header.Set("X-Request-Id", "5e8b5b43-2a1c-4c1e-9d0a-8e2a4c0d1f00")

	resp := message.NewResponse(http.StatusOK, nil)
	require.NoError(t, response.TLSSigner{}.Sign(context.Background(), req, resp))
	assert.Equal(t, req.Header.Get("X-Request-Id"), resp.Header.Get("X-Request-Id"))

	server, err := response.TLS{}.Authorize(context.Background(), req, resp)
	require.NoError(t, err)
	assert.Equal(t, identity.CertificateServer{Hostname: "example.com"}, server)

	plain, err := message.NewRequest(http.MethodGet, "http://example.com/echo", nil)
	require.NoError(t, err)

	_, err = response.TLS{}.Authorize(context.Background(), plain, message.NewResponse(http.StatusOK, nil))

	var peerErr *fault.PeerAuthenticationError
	require.ErrorAs(t, err, &peerErr)

	assert.False(t, response.TLSSigner{}.WasRequestedFor(plain))
}

func TestSignerChain(t *testing.T) {
	f := newFixture(t)
	chain := response.NewSignerChain(response.NewHTTPSigSigner(f.server, response.WithClock(f.clock)), response.TLSSigner{})

	assert.Equal(t, "EWP HTTP Signature Response Signer, Regular TLS Response Signer", chain.String())

	req, err := message.NewRequest(http.MethodGet, "https://example.com/echo", nil)
	require.NoError(t, err)

	resp := message.NewResponse(http.StatusOK, nil)
	require.NoError(t, chain.Sign(context.Background(), req, resp))
	assert.False(t, resp.Header.Has("Signature"))

	req.Header.Set("Accept-Signature", "rsa-sha256")
	require.NoError(t, chain.Sign(context.Background(), req, resp))
	assert.True(t, resp.Header.Has("Signature"))

	plain, err := message.NewRequest(http.MethodGet, "http://example.com/echo", nil)
	require.NoError(t, err)

	err = chain.Sign(context.Background(), plain, message.NewResponse(http.StatusOK, nil))

	var cf *fault.ClientFault
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, http.StatusBadRequest, cf.Status)
	assert.Contains(t, cf.Message, "explicitly request one of the following ways of response signing")
}
