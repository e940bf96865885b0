// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ewpsec/go-api-security/pkg/fileutils"
	"github.com/ewpsec/go-api-security/pkg/keys"
)

var keyIDCommand = &cli.Command{
	Name:  "keyid",
	Usage: "print the keyId of a key pair or a public key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Usage:    "PEM private key, PEM public key or base64 DER public key file",
			Required: true,
		},
	},
	Action: func(cCtx *cli.Context) error {
		data, err := os.ReadFile(cCtx.String("key"))
		if err != nil {
			return err
		}

		if pair, err := keys.ParseKeyPairPEM(data); err == nil {
			fmt.Fprintln(cCtx.App.Writer, pair.ID())

			return nil
		}

		pub, err := keys.ParsePublicKey(data)
		if err != nil {
			return fmt.Errorf("%s holds neither a key pair nor a public key: %w", cCtx.String("key"), err)
		}

		id, err := keys.Fingerprint(pub)
		if err != nil {
			return err
		}

		fmt.Fprintln(cCtx.App.Writer, id)

		return nil
	},
}

var keyGenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "generate an RSA key pair and print its manifest entry",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "name of the key pair",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "dir",
			Value: "ewpsec",
			Usage: "directory relative to the XDG data home to store the key pair in",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "store the key pair in this directory instead of the XDG data home",
		},
		&cli.BoolFlag{
			Name:  "env",
			Usage: "also print the key pair encoded for the " + keys.KeyPairEnvVar + " environment variable",
		},
	},
	Action: func(cCtx *cli.Context) error {
		name := cCtx.String("name")
		if name == "" || filepath.Base(name) != name {
			return errors.New("key pair name must be a plain file name")
		}

		pair, err := keys.GenerateKeyPair()
		if err != nil {
			return err
		}

		var path string

		if out := cCtx.String("out"); out != "" {
			if err = fileutils.CheckOutputDir(out); err != nil {
				return err
			}

			path = filepath.Join(out, name+".pem")

			if fileutils.FileExists(path) {
				return fmt.Errorf("refusing to overwrite %s", path)
			}

			data, err := pair.MarshalPEM()
			if err != nil {
				return err
			}

			if err = os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
		} else {
			if path, err = keys.NewProvider(cCtx.String("dir")).WriteKeyPair(name, pair); err != nil {
				return err
			}
		}

		pub, err := keys.MarshalPublicKey(pair.Public())
		if err != nil {
			return err
		}

		w := cCtx.App.Writer

		fmt.Fprintf(w, "key pair: %s\n", path)
		fmt.Fprintf(w, "keyId:    %s\n", pair.ID())
		fmt.Fprintf(w, "public:   %s\n", pub)

		if cCtx.Bool("env") {
			encoded, err := keys.Encode(pair)
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "%s=%s\n", keys.KeyPairEnvVar, encoded)
		}

		return nil
	},
}
