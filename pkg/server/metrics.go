// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ewpsec/go-api-security/pkg/identity"
)

// Metrics counts what the middleware does.
//
// A nil *Metrics records nothing.
type Metrics struct {
	authorizations *prometheus.CounterVec
	responses      *prometheus.CounterVec
}

// NewMetrics creates Metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ewpsec",
			Subsystem: "server",
			Name:      "authorizations_total",
			Help:      "Number of requests authorized, by client identity kind",
		}, []string{"client"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ewpsec",
			Subsystem: "server",
			Name:      "responses_total",
			Help:      "Number of responses written, by status code and whether the pipeline failed",
		}, []string{"code", "failed"}),
	}

	for _, c := range []prometheus.Collector{m.authorizations, m.responses} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) authorized(client identity.Client) {
	if m == nil {
		return
	}

	m.authorizations.WithLabelValues(clientKind(client)).Inc()
}

func (m *Metrics) served(status int) {
	if m == nil {
		return
	}

	m.responses.WithLabelValues(strconv.Itoa(status), "false").Inc()
}

func (m *Metrics) failed(status int) {
	if m == nil {
		return
	}

	m.responses.WithLabelValues(strconv.Itoa(status), "true").Inc()
}

func clientKind(client identity.Client) string {
	switch client.(type) {
	case identity.Anonymous:
		return "anonymous"
	case identity.Certificate:
		return "certificate"
	case identity.RSAKey:
		return "rsa_key"
	default:
		return "unknown"
	}
}
