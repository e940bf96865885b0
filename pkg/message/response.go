// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package message

// Response is an HTTP response travelling through the security pipeline.
type Response struct {
	Entity

	Status int
}

// NewResponse creates a response with the given status code and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{
		Status: status,
		Entity: Entity{Body: body},
	}
}
