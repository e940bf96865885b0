// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/ewpsec/go-api-security/pkg/keys"
)

// Manifest is the YAML representation of a Static directory.
//
//	client-certificates:
//	  - <hex SHA-256 of the DER certificate>
//	client-keys:
//	  - <base64 DER public key>
//	server-keys:
//	  - key: <base64 DER public key>
//	    endpoints:
//	      - https://example.com/echo
type Manifest struct {
	ClientCertificates []string         `yaml:"client-certificates"`
	ClientKeys         []string         `yaml:"client-keys"`
	ServerKeys         []ServerKeyEntry `yaml:"server-keys"`
}

// ServerKeyEntry is a server key and the endpoints it covers.
type ServerKeyEntry struct {
	Key       string   `yaml:"key"`
	Endpoints []string `yaml:"endpoints"`
}

// LoadManifest reads a manifest file into a new Static directory.
func LoadManifest(path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	return ReadManifest(f)
}

// ReadManifest parses a manifest into a new Static directory. All invalid entries are reported at once.
func ReadManifest(r io.Reader) (*Static, error) {
	var manifest Manifest

	if err := yaml.NewDecoder(r).Decode(&manifest); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	s := NewStatic()

	var errs error

	for _, fingerprint := range manifest.ClientCertificates {
		s.AddCertificateFingerprint(fingerprint)
	}

	for i, encoded := range manifest.ClientKeys {
		key, err := keys.ParsePublicKey([]byte(encoded))
		if err == nil {
			err = s.AddClientKey(key)
		}

		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("client-keys[%d]: %w", i, err))
		}
	}

	for i, entry := range manifest.ServerKeys {
		key, err := keys.ParsePublicKey([]byte(entry.Key))
		if err == nil {
			err = s.AddServerKey(key, entry.Endpoints...)
		}

		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("server-keys[%d]: %w", i, err))
		}
	}

	if errs != nil {
		return nil, errs
	}

	return s, nil
}
