// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer

	app := &cli.App{
		Name:     "ewpsec",
		Writer:   &out,
		Commands: []*cli.Command{keyIDCommand, keyGenCommand},
	}

	require.NoError(t, app.Run(append([]string{"ewpsec"}, args...)))

	return out.String()
}

func TestKeyGenAndKeyID(t *testing.T) {
	dir := t.TempDir()

	out := run(t, "keygen", "--name", "server", "--out", dir, "--env")

	var keyID string

	for _, line := range strings.Split(out, "\n") {
		if value, ok := strings.CutPrefix(line, "keyId:"); ok {
			keyID = strings.TrimSpace(value)
		}
	}

	require.Len(t, keyID, 64)
	assert.Contains(t, out, "EWPSEC_KEY_PAIR=")

	assert.Equal(t, keyID+"\n", run(t, "keyid", "--key", filepath.Join(dir, "server.pem")))
}

func TestKeyGenRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()

	run(t, "keygen", "--name", "server", "--out", dir)

	app := &cli.App{
		Name:     "ewpsec",
		Writer:   &bytes.Buffer{},
		Commands: []*cli.Command{keyGenCommand},
	}

	err := app.Run([]string{"ewpsec", "keygen", "--name", "server", "--out", dir})
	assert.ErrorContains(t, err, "refusing to overwrite")
}

func TestEchoHandler(t *testing.T) {
	form := url.Values{"echo": []string{"a", "<b>"}}

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	echoHandler(zap.NewNop()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `<response xmlns="`+echoNamespace+`"><echo>a</echo><echo>&lt;b&gt;</echo></response>`)
}
