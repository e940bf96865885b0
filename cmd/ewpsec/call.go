// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/ewpsec/go-api-security/pkg/config"
	"github.com/ewpsec/go-api-security/pkg/message"
)

var callCommand = &cli.Command{
	Name:      "call",
	Usage:     "call a configured endpoint and verify its response",
	ArgsUsage: "ENDPOINT",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Usage:    "configuration file",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "echo",
			Usage: "echo parameter to send, may be repeated",
		},
		&cli.BoolFlag{
			Name:  "get",
			Usage: "send the echo parameters in the query string of a GET request",
		},
	}, logFlags...),
	Action: call,
}

func call(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return errors.New("expected the endpoint name or URL as the only argument")
	}

	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(cCtx.String("config"))
	if err != nil {
		return err
	}

	ep, ok := cfg.Endpoint(cCtx.Args().First())
	if !ok {
		if ep, ok = cfg.EndpointForURL(cCtx.Args().First()); !ok {
			return fmt.Errorf("endpoint %q is not configured", cCtx.Args().First())
		}
	}

	pipeline, err := config.Build(cfg, nil, config.WithLogger(logger))
	if err != nil {
		return err
	}

	transport, err := pipeline.Transport(cCtx.Context, ep)
	if err != nil {
		return err
	}

	form := url.Values{"echo": cCtx.StringSlice("echo")}

	var req *message.Request

	if cCtx.Bool("get") {
		u, err := url.Parse(ep.URL)
		if err != nil {
			return err
		}

		u.RawQuery = form.Encode()

		req, err = message.NewRequest(http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
	} else {
		req, err = message.NewRequest(http.MethodPost, ep.URL, []byte(form.Encode()))
		if err != nil {
			return err
		}

		req.Header.Set(message.ContentTypeHeaderKey, "application/x-www-form-urlencoded")
	}

	resp, srv, err := transport.Do(cCtx.Context, req)
	if err != nil {
		return err
	}

	w := cCtx.App.Writer

	fmt.Fprintf(w, "HTTP %d, server authenticated as %s\n", resp.Status, srv)

	for _, n := range append(req.Notices(), resp.Notices()...) {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Text)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, string(resp.Body))

	return nil
}
