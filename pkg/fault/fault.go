// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fault defines the errors produced by the security pipeline.
//
// A ClientFault is the server telling a client that its request was rejected, and renders to an
// HTTP error response. A PeerAuthenticationError is the client deciding that a response cannot be
// trusted. An InternalError is a broken invariant or misconfiguration.
package fault

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/ewpsec/go-api-security/pkg/message"
)

// ErrorResponseNamespace is the XML namespace of error response bodies.
const ErrorResponseNamespace = "https://github.com/erasmus-without-paper/ewp-specs-architecture/blob/stable-v1/common-types.xsd"

// ClientFault is a request rejection which should be reported to the client.
type ClientFault struct {
	Header  message.Header
	Message string
	Status  int
}

// New creates a ClientFault.
func New(status int, format string, args ...any) *ClientFault {
	return &ClientFault{
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithHeader adds a header to the error response and returns the fault.
func (f *ClientFault) WithHeader(name, value string) *ClientFault {
	f.Header.Set(name, value)

	return f
}

func (f *ClientFault) Error() string {
	return fmt.Sprintf("HTTP %d: %s", f.Status, f.Message)
}

type errorResponse struct {
	XMLName          xml.Name `xml:"error-response"`
	Xmlns            string   `xml:"xmlns,attr"`
	DeveloperMessage string   `xml:"developer-message"`
}

// Response renders the fault as an error response with an XML body.
func (f *ClientFault) Response() *message.Response {
	body, err := xml.Marshal(errorResponse{
		Xmlns:            ErrorResponseNamespace,
		DeveloperMessage: f.Message,
	})
	if err != nil { // string fields only, can't happen
		panic(err)
	}

	resp := message.NewResponse(f.Status, append([]byte(xml.Header), body...))
	resp.Header = f.Header.Clone()
	resp.Header.Set(message.ContentTypeHeaderKey, "text/xml; charset=utf-8")

	return resp
}

// UnmatchedScheme is returned by an authorizer when the request does not attempt its scheme at all.
//
// The embedded ClientFault is what the client should see if no other scheme matches either.
type UnmatchedScheme struct {
	ClientFault
}

// Unmatched creates an UnmatchedScheme.
func Unmatched(status int, format string, args ...any) *UnmatchedScheme {
	return &UnmatchedScheme{ClientFault: *New(status, format, args...)}
}

func (u *UnmatchedScheme) Error() string {
	return "unmatched: " + u.ClientFault.Error()
}

func (u *UnmatchedScheme) Unwrap() error {
	return &u.ClientFault
}

// PeerAuthenticationError is returned when a response fails to meet the client's expectations.
type PeerAuthenticationError struct {
	Message string
}

// Peer creates a PeerAuthenticationError.
func Peer(format string, args ...any) *PeerAuthenticationError {
	return &PeerAuthenticationError{Message: fmt.Sprintf(format, args...)}
}

func (e *PeerAuthenticationError) Error() string {
	return "could not authenticate the server: " + e.Message
}

// InternalError signals a misconfiguration or a broken invariant.
type InternalError struct {
	Err error
}

// Internal creates an InternalError.
func Internal(format string, args ...any) *InternalError {
	return &InternalError{Err: fmt.Errorf(format, args...)}
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// ForMessage returns the error appropriate for the side m belongs to: a ClientFault for requests
// (the server is processing them) and a PeerAuthenticationError for responses.
func ForMessage(m message.Message, status int, format string, args ...any) error {
	if _, ok := m.(*message.Response); ok {
		return Peer(format, args...)
	}

	return New(status, format, args...)
}

// AsClientFault extracts the ClientFault from err, if any.
func AsClientFault(err error) (*ClientFault, bool) {
	var cf *ClientFault
	if errors.As(err, &cf) {
		return cf, true
	}

	var u *UnmatchedScheme
	if errors.As(err, &u) {
		return &u.ClientFault, true
	}

	return nil, false
}

// ResponseFor renders any error as an error response. Errors which are not client faults become
// an opaque 500 response.
func ResponseFor(err error) *message.Response {
	if cf, ok := AsClientFault(err); ok {
		return cf.Response()
	}

	return New(http.StatusInternalServerError, "Internal server error.").Response()
}
