// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package message

import (
	"strings"
)

type headerEntry struct {
	name  string
	value string
}

// Header is an ordered, case-insensitive mapping of header names to values.
//
// The zero value is an empty header set ready to use.
type Header struct {
	entries []headerEntry
}

// NewHeader returns a Header populated from name/value pairs.
func NewHeader(pairs ...string) Header {
	var h Header

	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}

	return h
}

func (h *Header) index(name string) int {
	for i, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return i
		}
	}

	return -1
}

// Get returns the value of the header, or an empty string if it is absent.
func (h *Header) Get(name string) string {
	value, _ := h.Lookup(name)

	return value
}

// Lookup returns the value of the header and whether it was present.
func (h *Header) Lookup(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.entries[i].value, true
	}

	return "", false
}

// Has reports whether the header is present.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Set replaces the value of an existing header in place (keeping its position and original
// name casing), or appends a new one.
func (h *Header) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.entries[i].value = value

		return
	}

	h.entries = append(h.entries, headerEntry{name: name, value: value})
}

// Del removes the header.
func (h *Header) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.entries = append(h.entries[:i], h.entries[i+1:]...)
	}
}

// Names returns the header names in insertion order.
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.entries))

	for _, e := range h.entries {
		names = append(names, e.name)
	}

	return names
}

// Len returns the number of headers.
func (h *Header) Len() int {
	return len(h.entries)
}

// Each calls fn for every header in order.
func (h *Header) Each(fn func(name, value string)) {
	for _, e := range h.entries {
		fn(e.name, e.value)
	}
}

// Clone returns a deep copy of the header set.
func (h *Header) Clone() Header {
	return Header{entries: append([]headerEntry(nil), h.entries...)}
}

// CommaSeparatedTokens splits a header value on commas, trimming whitespace and dropping empty tokens.
func CommaSeparatedTokens(value string) []string {
	var tokens []string

	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}

	return tokens
}
