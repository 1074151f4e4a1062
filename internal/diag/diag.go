// Package diag formats the diagnostic text carried on mserr.LimitExceeded
// errors and on per-session log lines, so a resource cap reads in human
// terms ("1,048,579 > 1,048,576") instead of raw integers. It mirrors the
// teacher's internal/errors package's job of producing readable structured
// text, backed by github.com/dustin/go-humanize (SPEC_FULL.md "Logging").
package diag

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// LimitExceeded renders a resource-limit diagnostic such as
// "list literal exceeds maximum length (1,048,577 > 1,048,576)".
func LimitExceeded(what string, got, max int) string {
	return fmt.Sprintf("%s (%s > %s)", what, humanize.Comma(int64(got)), humanize.Comma(int64(max)))
}

// SessionTag renders a short diagnostic prefix identifying which VM
// session a log line belongs to, given the façade's session UUID.
func SessionTag(sessionID string) string {
	if len(sessionID) < 8 {
		return sessionID
	}
	return sessionID[:8]
}
