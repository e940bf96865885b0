// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config describes the security settings of API endpoints and builds their pipelines.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/ewpsec/go-api-security/pkg/fileutils"
)

// Client authentication methods.
const (
	ClientAuthNone    = "none"
	ClientAuthTLSCert = "tlscert"
	ClientAuthHTTPSig = "httpsig"
)

// Server authentication methods.
const (
	ServerAuthTLSCert = "tlscert"
	ServerAuthHTTPSig = "httpsig"
)

// Mode tells whether an encryption layer is used.
type Mode string

// Encryption modes.
const (
	ModeNone     Mode = "none"
	ModeOptional Mode = "optional"
	ModeRequired Mode = "required"
)

// Enabled reports whether the layer may be used. An empty mode means none.
func (m Mode) Enabled() bool {
	return m == ModeOptional || m == ModeRequired
}

// Config is the root of the configuration file.
type Config struct {
	// Manifest is the path of the registry manifest listing known certificates and keys.
	Manifest string `yaml:"manifest"`

	// Listen is the address the API server listens on.
	Listen string `yaml:"listen"`

	Keys      Keys       `yaml:"keys"`
	TLS       TLS        `yaml:"tls"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Keys names the key pairs in the XDG data directory.
type Keys struct {
	// Dir is the directory relative to the XDG data home.
	Dir string `yaml:"dir"`

	// Server signs responses and decrypts requests.
	Server string `yaml:"server"`

	// Client signs requests and decrypts responses. The EWPSEC_KEY_PAIR environment variable takes
	// precedence.
	Client string `yaml:"client"`
}

// TLS configures the client certificate presented by the caller.
type TLS struct {
	Certificate string `yaml:"certificate"`
	Key         string `yaml:"key"`
}

// Endpoint is the security configuration of a single API endpoint.
type Endpoint struct {
	Name string `yaml:"name"`

	// Path is where the server mounts the endpoint.
	Path string `yaml:"path"`

	// URL is the public URL of the endpoint, as published in the manifest.
	URL string `yaml:"url"`

	// EncryptionKey is the keyId of the server key requests are encrypted to.
	EncryptionKey string `yaml:"encryption-key"`

	RequestEncryption  Mode `yaml:"request-encryption"`
	ResponseEncryption Mode `yaml:"response-encryption"`

	// ClientAuth lists the accepted client authentication methods.
	ClientAuth []string `yaml:"client-auth"`

	// ServerAuth lists the accepted server authentication methods.
	ServerAuth []string `yaml:"server-auth"`

	Gzip bool `yaml:"gzip"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Read(bytes.NewReader(data))
}

// Read parses and validates a configuration.
func Read(r io.Reader) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Endpoint returns the endpoint with the given name.
func (cfg *Config) Endpoint(name string) (*Endpoint, bool) {
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Name == name {
			return &cfg.Endpoints[i], true
		}
	}

	return nil, false
}

// EndpointForURL returns the endpoint with the given public URL.
func (cfg *Config) EndpointForURL(u string) (*Endpoint, bool) {
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].URL == u {
			return &cfg.Endpoints[i], true
		}
	}

	return nil, false
}

// Validate checks the configuration, reporting every problem found.
func (cfg *Config) Validate() error {
	var result *multierror.Error

	if cfg.Manifest == "" {
		result = multierror.Append(result, errors.New("manifest: path is required"))
	} else if err := fileutils.CheckFile(cfg.Manifest); err != nil {
		result = multierror.Append(result, fmt.Errorf("manifest: %w", err))
	}

	if (cfg.TLS.Certificate == "") != (cfg.TLS.Key == "") {
		result = multierror.Append(result, errors.New("tls: certificate and key must be set together"))
	}

	for _, path := range []string{cfg.TLS.Certificate, cfg.TLS.Key} {
		if path == "" {
			continue
		}

		if err := fileutils.CheckFile(path); err != nil {
			result = multierror.Append(result, fmt.Errorf("tls: %w", err))
		}
	}

	if len(cfg.Endpoints) == 0 {
		result = multierror.Append(result, errors.New("endpoints: at least one endpoint is required"))
	}

	names := map[string]struct{}{}

	for i, ep := range cfg.Endpoints {
		if _, ok := names[ep.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("endpoints[%d]: duplicate name %q", i, ep.Name))
		}

		names[ep.Name] = struct{}{}

		for _, err := range ep.validate() {
			result = multierror.Append(result, fmt.Errorf("endpoints[%d]: %w", i, err))
		}
	}

	return result.ErrorOrNil()
}

func (ep *Endpoint) validate() []error {
	var errs []error

	if ep.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if !strings.HasPrefix(ep.Path, "/") {
		errs = append(errs, fmt.Errorf("path must start with /: %q", ep.Path))
	}

	if u, err := url.Parse(ep.URL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("url must be absolute: %q", ep.URL))
	}

	if len(ep.ClientAuth) == 0 {
		errs = append(errs, errors.New("client-auth: at least one method is required"))
	}

	for _, method := range ep.ClientAuth {
		switch method {
		case ClientAuthNone, ClientAuthTLSCert, ClientAuthHTTPSig:
		default:
			errs = append(errs, fmt.Errorf("client-auth: unknown method %q", method))
		}
	}

	if len(ep.ServerAuth) == 0 {
		errs = append(errs, errors.New("server-auth: at least one method is required"))
	}

	for _, method := range ep.ServerAuth {
		switch method {
		case ServerAuthTLSCert, ServerAuthHTTPSig:
		default:
			errs = append(errs, fmt.Errorf("server-auth: unknown method %q", method))
		}
	}

	for _, mode := range []struct {
		field string
		value Mode
	}{
		{"request-encryption", ep.RequestEncryption},
		{"response-encryption", ep.ResponseEncryption},
	} {
		switch mode.value {
		case "", ModeNone, ModeOptional, ModeRequired:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown mode %q", mode.field, mode.value))
		}
	}

	if ep.RequestEncryption.Enabled() && ep.EncryptionKey == "" {
		errs = append(errs, errors.New("encryption-key: required when request-encryption is enabled"))
	}

	return errs
}
