package rfc9111

import (
	"net/http"
	"time"
)

// §  5.3.  Expires
// §
// §     The "Expires" response header field gives the date/time after which
// §     the response is considered stale.
// §
// §       Expires = HTTP-date
// §
// §     A cache recipient MUST interpret invalid date formats, especially the
// §     value "0", as representing a time in the past (i.e., "already
// §     expired").

// GetExpires returns the parsed Expires header and whether the header is present at all.
// Besides HTTP-date, RFC 3339 timestamps are accepted since some origins send them.
// A present but invalid value returns the zero time together with the parse error.
func GetExpires(header http.Header) (time.Time, bool, error) {
	if len(header.Values("Expires")) == 0 {
		return time.Time{}, false, nil
	}
	value := header.Get("Expires")
	exp, err := HttpDate(value)
	if err == nil {
		return exp, true, nil
	}
	if exp, rfc3339Err := time.Parse(time.RFC3339, value); rfc3339Err == nil {
		return exp, true, nil
	}
	return time.Time{}, true, err
}
