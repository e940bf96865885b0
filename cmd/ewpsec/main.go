// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements ewpsec, a tool to manage keys, serve secured endpoints and call them.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var logFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages, including pipeline notices",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
}

func newLogger(cCtx *cli.Context) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if cCtx.Bool("log-json") {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if cCtx.Bool("log-debug") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

func main() {
	app := &cli.App{
		Name:  "ewpsec",
		Usage: "Secure EWP-style HTTP APIs with TLS certificates, HTTP Signatures and body encryption",
		Commands: []*cli.Command{
			keyIDCommand,
			keyGenCommand,
			serveCommand,
			callCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
