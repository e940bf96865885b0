// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package keys

import (
	"encoding/base64"
	"fmt"
	"os"
)

// KeyPairEnvVar is the name of the environment variable that contains the base64 encoded PEM private key.
const KeyPairEnvVar = "EWPSEC_KEY_PAIR"

// GetFromEnv checks if a key pair is available in the environment.
// If found, the name of the variable and its value are returned. An empty variable counts as unset.
func GetFromEnv() (envKey, valueBase64 string) {
	value, ok := os.LookupEnv(KeyPairEnvVar)
	if !ok || value == "" {
		return "", ""
	}

	return KeyPairEnvVar, value
}

// Encode encodes the key pair into a base64 encoded PEM string.
func Encode(p *KeyPair) (string, error) {
	data, err := p.MarshalPEM()
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a key pair from a base64 encoded PEM string.
func Decode(valueBase64 string) (*KeyPair, error) {
	data, err := base64.StdEncoding.DecodeString(valueBase64)
	if err != nil {
		return nil, err
	}

	return ParseKeyPairPEM(data)
}

// FromEnv loads the key pair from KeyPairEnvVar. It returns nil without an error if the variable is not set.
func FromEnv() (*KeyPair, error) {
	envKey, value := GetFromEnv()
	if envKey == "" {
		return nil, nil //nolint:nilnil
	}

	pair, err := Decode(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", envKey, err)
	}

	return pair, nil
}
