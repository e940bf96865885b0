// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package message

import "fmt"

// NoticeLevel classifies processing notices.
type NoticeLevel int

// Notice levels.
const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
)

func (l NoticeLevel) String() string {
	if l == NoticeWarning {
		return "warning"
	}

	return "info"
}

// Notice is a human-readable record of something a pipeline stage did to a message.
type Notice struct {
	Text  string
	Level NoticeLevel
}

// Entity is the part shared by requests and responses: headers, body and processing notices.
//
// Entities are not safe for concurrent use; every message is owned by a single pipeline run.
type Entity struct {
	Header  Header
	Body    []byte
	notices []Notice
}

// Message is implemented by *Request and *Response.
type Message interface {
	Base() *Entity
}

var (
	_ Message = (*Request)(nil)
	_ Message = (*Response)(nil)
)

// Base returns the entity itself, so that embedding types implement Message.
func (e *Entity) Base() *Entity {
	return e
}

// BodyOrEmpty returns the body, or an empty slice if there is no body.
func (e *Entity) BodyOrEmpty() []byte {
	if e.Body == nil {
		return []byte{}
	}

	return e.Body
}

// AddNotice records an informational notice.
func (e *Entity) AddNotice(format string, args ...any) {
	e.notices = append(e.notices, Notice{Level: NoticeInfo, Text: fmt.Sprintf(format, args...)})
}

// AddWarning records a warning notice.
func (e *Entity) AddWarning(format string, args ...any) {
	e.notices = append(e.notices, Notice{Level: NoticeWarning, Text: fmt.Sprintf(format, args...)})
}

// Notices returns all notices recorded so far.
func (e *Entity) Notices() []Notice {
	return append([]Notice(nil), e.notices...)
}
