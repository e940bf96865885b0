// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package keys

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Provider handles loading/saving key pairs in the XDG data directory.
type Provider struct {
	dataFileDirectory string
}

// NewProvider creates a new Provider.
func NewProvider(dataFileDirectory string) *Provider {
	return &Provider{
		dataFileDirectory: dataFileDirectory,
	}
}

// ReadKeyPair reads a named key pair from the filesystem.
func (provider *Provider) ReadKeyPair(name string) (*KeyPair, error) {
	keyPath, err := provider.getKeyFilePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	return ParseKeyPairPEM(data)
}

// WriteKeyPair saves the key pair to disk and returns the save path.
func (provider *Provider) WriteKeyPair(name string, p *KeyPair) (string, error) {
	data, err := p.MarshalPEM()
	if err != nil {
		return "", err
	}

	keyPath, err := provider.getKeyFilePath(name)
	if err != nil {
		return "", err
	}

	if err = os.WriteFile(keyPath, data, 0o600); err != nil {
		return "", err
	}

	return keyPath, nil
}

// DeleteKeyPair deletes the key pair from disk.
func (provider *Provider) DeleteKeyPair(name string) error {
	keyPath, err := provider.getKeyFilePath(name)
	if err != nil {
		return err
	}

	return os.Remove(keyPath)
}

func (provider *Provider) getKeyFilePath(name string) (string, error) {
	return xdg.DataFile(filepath.Join(provider.dataFileDirectory, name+".pem"))
}
