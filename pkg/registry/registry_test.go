// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package registry_test

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/registry"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	client, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	server, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	dir := registry.NewStatic()
	require.NoError(t, dir.AddClientKey(client.Public()))
	require.NoError(t, dir.AddServerKey(server.Public(), "https://example.com/api/"))

	found, err := dir.FindRSAPublicKey(ctx, strings.ToUpper(server.ID()))
	require.NoError(t, err)
	assert.True(t, server.Public().Equal(found))

	_, err = dir.FindRSAPublicKey(ctx, "0000")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	known, err := dir.IsClientKeyKnown(ctx, client.Public())
	require.NoError(t, err)
	assert.True(t, known)

	known, err = dir.IsClientKeyKnown(ctx, server.Public())
	require.NoError(t, err)
	assert.False(t, known)

	covered, err := dir.IsAPICoveredByServerKey(ctx, "https://example.com/api/echo", server.Public())
	require.NoError(t, err)
	assert.True(t, covered)

	covered, err = dir.IsAPICoveredByServerKey(ctx, "https://other.example.com/api/echo", server.Public())
	require.NoError(t, err)
	assert.False(t, covered)

	cert := &x509.Certificate{Raw: []byte("certificate")}

	known, err = dir.IsCertificateKnown(ctx, cert)
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, dir.AddCertificate(cert))

	known, err = dir.IsCertificateKnown(ctx, cert)
	require.NoError(t, err)
	assert.True(t, known)
}

func TestReadManifest(t *testing.T) {
	ctx := context.Background()

	client, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	clientEncoded, err := keys.MarshalPublicKey(client.Public())
	require.NoError(t, err)

	server, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	serverEncoded, err := keys.MarshalPublicKey(server.Public())
	require.NoError(t, err)

	manifest := fmt.Sprintf(`
client-keys:
  - %s
server-keys:
  - key: %s
    endpoints:
      - https://example.com/echo
`, clientEncoded, serverEncoded)

	dir, err := registry.ReadManifest(strings.NewReader(manifest))
	require.NoError(t, err)

	known, err := dir.IsClientKeyKnown(ctx, client.Public())
	require.NoError(t, err)
	assert.True(t, known)

	covered, err := dir.IsAPICoveredByServerKey(ctx, "https://example.com/echo", server.Public())
	require.NoError(t, err)
	assert.True(t, covered)

	_, err = registry.ReadManifest(strings.NewReader("client-keys: [bad, worse]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client-keys[0]")
	assert.Contains(t, err.Error(), "client-keys[1]")
}
