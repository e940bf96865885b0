// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build race

package response_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewpsec/go-api-security/pkg/message"
	"github.com/ewpsec/go-api-security/pkg/request"
	"github.com/ewpsec/go-api-security/pkg/response"
)

func TestExchangeParallel(t *testing.T) {
	f := newFixture(t)

	requestSigner := request.NewHTTPSigSigner(f.client, request.WithClock(f.clock))
	httpSig := request.NewHTTPSig(f.directory, request.WithClock(f.clock))

	chain, err := request.NewChain(1, request.NewCertificate(f.directory), httpSig, request.Anonymous{})
	require.NoError(t, err)

	signer := response.NewSignerChain(response.NewHTTPSigSigner(f.server, response.WithClock(f.clock)), response.TLSSigner{})
	authorizer := response.NewHTTPSig(f.directory, endpoint, response.WithClock(f.clock))

	exchange := func(t *testing.T) {
		req, err := message.NewRequest(http.MethodPost, endpoint, []byte("echo=hello"))
		require.NoError(t, err)

		req.Header.Set("Accept-Signature", "rsa-sha256")
		require.NoError(t, requestSigner.Sign(context.Background(), req))

		client, err := chain.Authorize(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "client key "+f.client.ID(), client.String())

		resp := message.NewResponse(http.StatusOK, []byte("<response/>"))
		require.NoError(t, signer.Sign(context.Background(), req, resp))

		server, err := authorizer.Authorize(context.Background(), req, resp)
		require.NoError(t, err)
		assert.Equal(t, "server key "+f.server.ID(), server.String())
	}

	t.Run("parallel_section", func(t *testing.T) {
		for range 10 {
			t.Run("Exchange", func(t *testing.T) {
				t.Parallel()

				for range 10 {
					exchange(t)
				}
			})
		}
	})
}
