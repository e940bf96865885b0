// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package message

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// ErrBodyTooLarge is returned when a body exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("body too large")

// FromHTTPRequest converts a net/http request into a Request.
//
// The body is read fully and re-set on r so it can be read in further handlers.
func FromHTTPRequest(r *http.Request) (*Request, error) {
	body, err := readBody(r.Body)
	if err != nil {
		return nil, err
	}

	if r.Body != nil {
		if err = r.Body.Close(); err != nil {
			return nil, err
		}

		// re-set the body so it can be read in further handlers
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	u := *r.URL

	if u.Scheme == "" {
		u.Scheme = "http"

		if r.TLS != nil {
			u.Scheme = "https"
		}
	}

	if u.Host == "" {
		u.Host = r.Host
	}

	req := &Request{
		Method: r.Method,
		URL:    &u,
		Entity: Entity{Header: HeaderFromHTTP(r.Header)},
	}

	if len(body) > 0 {
		req.Body = body
	}

	if r.Host != "" {
		req.Header.Set(HostHeaderKey, r.Host)
	}

	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		req.ClientCertificate = r.TLS.PeerCertificates[0]
	}

	return req, nil
}

// ToHTTP converts the request into a client-side net/http request.
func (r *Request) ToHTTP(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), bytes.NewReader(r.BodyOrEmpty()))
	if err != nil {
		return nil, err
	}

	req.Header = r.Header.HTTPHeader()

	if host := req.Header.Get(HostHeaderKey); host != "" {
		req.Host = host
		req.Header.Del(HostHeaderKey)
	}

	return req, nil
}

// HTTPHeader converts the header into a net/http header.
func (h *Header) HTTPHeader() http.Header {
	out := make(http.Header, h.Len())

	h.Each(func(name, value string) {
		out.Set(name, value)
	})

	return out
}

// FromHTTPResponse converts a client-side net/http response into a Response. The body of resp is consumed and closed.
func FromHTTPResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close() //nolint:errcheck

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Status: resp.StatusCode,
		Entity: Entity{
			Header: HeaderFromHTTP(resp.Header),
			Body:   body,
		},
	}, nil
}

// WriteTo writes the response to a net/http response writer.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	r.Header.Each(func(name, value string) {
		w.Header().Set(name, value)
	})

	w.WriteHeader(r.Status)

	if len(r.Body) == 0 {
		return nil
	}

	_, err := w.Write(r.Body)

	return err
}

func readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize+1))
	if err != nil {
		return nil, err
	}

	if len(data) > MaxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, MaxBodySize)
	}

	return data, nil
}

// HeaderFromHTTP converts a net/http header. Repeated values are joined with commas.
//
// net/http headers are unordered; names are sorted so the resulting order is deterministic.
func HeaderFromHTTP(src http.Header) Header {
	names := make([]string, 0, len(src))

	for name := range src {
		names = append(names, name)
	}

	sort.Strings(names)

	var h Header

	for _, name := range names {
		h.Set(name, strings.Join(src[name], ", "))
	}

	return h
}
