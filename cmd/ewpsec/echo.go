// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/xml"
	"net/http"

	"go.uber.org/zap"

	"github.com/ewpsec/go-api-security/pkg/server"
)

const echoNamespace = "https://github.com/erasmus-without-paper/ewp-specs-api-echo/tree/stable-v2"

type echoResponse struct {
	XMLName xml.Name `xml:"response"`
	Xmlns   string   `xml:"xmlns,attr"`
	Echo    []string `xml:"echo"`
}

// echoHandler replies with the echo parameters of the request.
func echoHandler(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		if client, ok := server.ClientFromContext(r.Context()); ok {
			logger.Info("echo", zap.Stringer("client", client), zap.Strings("echo", r.Form["echo"]))
		}

		body, err := xml.Marshal(echoResponse{Xmlns: echoNamespace, Echo: r.Form["echo"]})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(append([]byte(xml.Header), body...)) //nolint:errcheck
	})
}
