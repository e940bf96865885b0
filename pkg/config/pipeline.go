// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ewpsec/go-api-security/pkg/client"
	"github.com/ewpsec/go-api-security/pkg/coding"
	"github.com/ewpsec/go-api-security/pkg/httpsig"
	"github.com/ewpsec/go-api-security/pkg/keys"
	"github.com/ewpsec/go-api-security/pkg/registry"
	"github.com/ewpsec/go-api-security/pkg/request"
	"github.com/ewpsec/go-api-security/pkg/response"
	"github.com/ewpsec/go-api-security/pkg/rsaaes"
	"github.com/ewpsec/go-api-security/pkg/server"
)

// Pipeline builds the security pipeline of configured endpoints.
type Pipeline struct {
	directory      registry.Directory
	serverKey      *keys.KeyPair
	clientKey      *keys.KeyPair
	tlsCertificate *tls.Certificate
	logger         *zap.Logger
}

// BuildOption configures Build.
type BuildOption func(*Pipeline)

// WithLogger sets the logger passed to the built components.
func WithLogger(logger *zap.Logger) BuildOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithServerKey overrides the server key pair named in the configuration.
func WithServerKey(pair *keys.KeyPair) BuildOption {
	return func(p *Pipeline) {
		p.serverKey = pair
	}
}

// WithClientKey overrides the client key pair named in the configuration.
func WithClientKey(pair *keys.KeyPair) BuildOption {
	return func(p *Pipeline) {
		p.clientKey = pair
	}
}

// Build loads the key material referenced by cfg. A nil directory is loaded from the manifest.
func Build(cfg *Config, directory registry.Directory, opts ...BuildOption) (*Pipeline, error) {
	p := &Pipeline{
		directory: directory,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.directory == nil {
		static, err := registry.LoadManifest(cfg.Manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest: %w", err)
		}

		p.directory = static
	}

	provider := keys.NewProvider(cfg.Keys.Dir)

	if p.serverKey == nil && cfg.Keys.Server != "" {
		pair, err := provider.ReadKeyPair(cfg.Keys.Server)
		if err != nil {
			return nil, fmt.Errorf("failed to read server key pair %q: %w", cfg.Keys.Server, err)
		}

		p.serverKey = pair
	}

	if p.clientKey == nil {
		pair, err := keys.FromEnv()
		if err != nil {
			return nil, err
		}

		p.clientKey = pair
	}

	if p.clientKey == nil && cfg.Keys.Client != "" {
		pair, err := provider.ReadKeyPair(cfg.Keys.Client)
		if err != nil {
			return nil, fmt.Errorf("failed to read client key pair %q: %w", cfg.Keys.Client, err)
		}

		p.clientKey = pair
	}

	if cfg.TLS.Certificate != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.Certificate, cfg.TLS.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}

		p.tlsCertificate = &cert
	}

	return p, nil
}

// Directory returns the directory the pipeline consults.
func (p *Pipeline) Directory() registry.Directory {
	return p.directory
}

// Middleware builds the server side of the endpoint.
func (p *Pipeline) Middleware(ep *Endpoint, opts ...server.Option) (*server.Middleware, error) {
	authorizer, err := p.requestAuthorizer(ep)
	if err != nil {
		return nil, err
	}

	var signers []response.Signer

	for _, method := range ep.ServerAuth {
		switch method {
		case ServerAuthHTTPSig:
			if p.serverKey == nil {
				return nil, fmt.Errorf("endpoint %s: httpsig server authentication requires a server key", ep.Name)
			}

			signers = append(signers, response.NewHTTPSigSigner(p.serverKey))
		case ServerAuthTLSCert:
			signers = append(signers, response.TLSSigner{})
		}
	}

	decoders := []coding.Decoder{coding.Gzip{}}

	var requiredDecodings []string

	if ep.RequestEncryption.Enabled() {
		if p.serverKey == nil {
			return nil, fmt.Errorf("endpoint %s: request encryption requires a server key", ep.Name)
		}

		decoders = append(decoders, coding.NewRSAAESDecoder(p.serverKey))

		if ep.RequestEncryption == ModeRequired {
			requiredDecodings = append(requiredDecodings, rsaaes.Token)
		}
	}

	decoding, err := coding.NewDecoding(decoders, requiredDecodings...)
	if err != nil {
		return nil, err
	}

	encoding, err := p.responseEncoding(ep)
	if err != nil {
		return nil, err
	}

	opts = append([]server.Option{
		server.WithLogger(p.logger.With(zap.String("endpoint", ep.Name))),
		server.WithDecoding(decoding),
		server.WithEncoding(encoding),
	}, opts...)

	return server.NewMiddleware(authorizer, response.NewSignerChain(signers...), opts...)
}

func (p *Pipeline) requestAuthorizer(ep *Endpoint) (request.Authorizer, error) {
	authorizers := make([]request.Authorizer, 0, len(ep.ClientAuth))

	preferred := 0

	for _, method := range ep.ClientAuth {
		var a request.Authorizer

		switch method {
		case ClientAuthNone:
			a = request.Anonymous{}
		case ClientAuthTLSCert:
			a = request.NewCertificate(p.directory)
		case ClientAuthHTTPSig:
			a = request.NewHTTPSig(p.directory)
			preferred = len(authorizers)
		default:
			return nil, fmt.Errorf("endpoint %s: unknown client authentication method %q", ep.Name, method)
		}

		authorizers = append(authorizers, a)
	}

	if len(authorizers) == 0 {
		return nil, fmt.Errorf("endpoint %s: no client authentication methods", ep.Name)
	}

	return request.NewChain(preferred, authorizers...)
}

func (p *Pipeline) responseEncoding(ep *Endpoint) (*coding.Encoding, error) {
	var (
		encoders []coding.Encoder
		opts     = []coding.EncodingOption{coding.WithLogger(p.logger)}
	)

	if ep.Gzip {
		encoders = append(encoders, coding.Gzip{})
	}

	if ep.ResponseEncryption.Enabled() {
		encoders = append(encoders, coding.NewRSAAESEncoder(p.directory, nil))

		if ep.ResponseEncryption == ModeRequired {
			opts = append(opts, coding.WithRequired(rsaaes.Token))
		}
	}

	return coding.NewEncoding(encoders, opts...)
}

// Transport builds the client side of the endpoint.
//
// The strongest client authentication method the pipeline has credentials for is used: httpsig,
// then tlscert, then none.
func (p *Pipeline) Transport(ctx context.Context, ep *Endpoint) (*client.Transport, error) {
	options := client.Options{
		Logger: p.logger.With(zap.String("endpoint", ep.Name)),
	}

	switch {
	case slices.Contains(ep.ClientAuth, ClientAuthHTTPSig) && p.clientKey != nil:
		options.Signer = request.NewHTTPSigSigner(p.clientKey)
	case slices.Contains(ep.ClientAuth, ClientAuthTLSCert) && p.tlsCertificate != nil:
		options.Signer = request.NewCertificateSigner(p.tlsCertificate)
	case slices.Contains(ep.ClientAuth, ClientAuthNone):
		options.Signer = request.AnonymousSigner{}
	default:
		return nil, fmt.Errorf("endpoint %s: no credentials for any of the client authentication methods %v", ep.Name, ep.ClientAuth)
	}

	if slices.Contains(ep.ServerAuth, ServerAuthHTTPSig) {
		options.Authorizer = response.NewHTTPSig(p.directory, ep.URL)
		options.AcceptSignature = []string{httpsig.AlgorithmRSASHA256}
	} else {
		options.Authorizer = response.TLS{}
	}

	var err error

	if options.Encoding, err = p.requestEncoding(ctx, ep); err != nil {
		return nil, err
	}

	decoders := []coding.Decoder{coding.Gzip{}}

	var required []string

	if ep.ResponseEncryption.Enabled() {
		if p.clientKey == nil {
			return nil, fmt.Errorf("endpoint %s: response encryption requires a client key", ep.Name)
		}

		decoders = append(decoders, coding.NewRSAAESDecoder(p.clientKey))
		options.ResponseEncryptionKey = p.clientKey.Public()

		if ep.ResponseEncryption == ModeRequired {
			required = append(required, rsaaes.Token)
		}
	}

	if options.Decoding, err = coding.NewDecoding(decoders, required...); err != nil {
		return nil, err
	}

	return client.New(options), nil
}

func (p *Pipeline) requestEncoding(ctx context.Context, ep *Endpoint) (*coding.Encoding, error) {
	var encoders []coding.Encoder

	if ep.Gzip {
		encoders = append(encoders, coding.Gzip{})
	}

	if ep.RequestEncryption.Enabled() {
		recipient, err := p.encryptionKey(ctx, ep)
		if err != nil {
			return nil, err
		}

		encoders = append(encoders, coding.NewRSAAESEncoder(p.directory, recipient))
	}

	return coding.NewEncoding(encoders, coding.WithLogger(p.logger))
}

// encryptionKey resolves the server key the endpoint's requests are encrypted to. It must be
// registered as a server key covering the endpoint.
func (p *Pipeline) encryptionKey(ctx context.Context, ep *Endpoint) (*rsa.PublicKey, error) {
	key, err := p.directory.FindRSAPublicKey(ctx, ep.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: encryption key %s: %w", ep.Name, ep.EncryptionKey, err)
	}

	covered, err := p.directory.IsAPICoveredByServerKey(ctx, ep.URL, key)
	if err != nil {
		return nil, err
	}

	if !covered {
		return nil, fmt.Errorf("endpoint %s: encryption key %s does not cover %s", ep.Name, ep.EncryptionKey, ep.URL)
	}

	return key, nil
}
