// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package httpsig

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultAllowedClockSkew is the maximum difference between the local clock and a Date header.
const DefaultAllowedClockSkew = 5 * time.Minute

// Clock returns the current time.
type Clock func() time.Time

// ValidRequestID reports whether the value is a UUID in canonical lowercase form.
func ValidRequestID(value string) bool {
	id, err := uuid.Parse(value)

	return err == nil && id.String() == value
}

// CheckDate verifies that an HTTP date header value parses and lies within skew of now.
func CheckDate(value string, now time.Time, skew time.Duration) error {
	parsed, err := http.ParseTime(value)
	if err != nil {
		return errors.New("Could not parse the date. Make sure it's in a valid RFC 2616 format.") //nolint:revive,stylecheck
	}

	diff := now.Sub(parsed)
	if diff < 0 {
		diff = -diff
	}

	if diff > skew {
		return fmt.Errorf("Server/client difference exceeds the maximum allowed threshold (it was %d seconds; allowed: %d)", //nolint:revive,stylecheck
			int64(diff/time.Second), int64(skew/time.Second))
	}

	return nil
}

// FormatDate formats t as an HTTP date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
