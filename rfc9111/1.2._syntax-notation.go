package rfc9111

import (
	"fmt"
	"strings"
	"time"
)

// §  1.2.1.  Imported Rules
// §
// §     [HTTP] defines the following rules:
// §
// §       HTTP-date     = <HTTP-date, see [HTTP], Section 5.6.7>
// §       OWS           = <OWS, see [HTTP], Section 5.6.3>
// §       token         = <token, see [HTTP], Section 5.6.2>

// This section is from the HTTP specification (RFC9110), not the cache specification
//
// §  5.6.7.  Date/Time Formats
// §
// §       HTTP-date    = IMF-fixdate / obs-date
// §
// §     An example of the preferred format is
// §
// §       Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate
// §
// §     Examples of the two obsolete formats are
// §
// §       Sunday, 06-Nov-94 08:49:37 GMT   ; obsolete RFC 850 format
// §       Sun Nov  6 08:49:37 1994         ; ANSI C's asctime() format
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.
func HttpDate(dateStr string) (time.Time, error) {
	if date, err := imfDate(dateStr); err == nil {
		return date, err
	} else {
		// try to parse as obsolete date
		if date, err := obsDate(dateStr); err == nil {
			return date, err
		}
		// return original error if unsuccessful
		return date, err
	}
}

// ToHttpDate formats t as an IMF-fixdate.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(imfDateLayout)
}

// §     Preferred format:
// §
// §       IMF-fixdate  = day-name "," SP date1 SP time-of-day SP GMT
// §       ; fixed length/zone/capitalization subset of the format
// §       ; see Section 3.3 of [RFC5322]
const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

func imfDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if !strings.HasSuffix(str, " GMT") {
		return time.Time{}, fmt.Errorf("date %q is not in GMT time", dateStr)
	}
	return time.Parse(imfDateLayout, str)
}

// §     Obsolete formats:
// §
// §       obs-date     = rfc850-date / asctime-date
// §
// §       rfc850-date  = day-name-l "," SP date2 SP time-of-day SP GMT
// §       asctime-date = day-name SP date3 SP time-of-day SP year
func obsDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, err
	}
	return time.Parse(time.ANSIC, str)
}

// §     HTTP-date is case sensitive.  Note that Section 4.2 of [CACHING]
// §     relaxes this for cache recipients.
//
// Month and day names are title-cased so the Go layouts match,
// while the zone is upper-cased.
func normalizeDateStr(dateStr string) string {
	fields := strings.Fields(dateStr)
	for i, f := range fields {
		switch {
		case strings.EqualFold(f, "gmt"):
			fields[i] = "GMT"
		case len(f) > 1 && isLetter(f[0]):
			fields[i] = titleCase(f)
		default:
			fields[i] = titleDashed(f)
		}
	}
	// asctime pads single digit days with two spaces
	if len(fields) == 5 && len(fields[2]) == 1 {
		fields[2] = " " + fields[2]
	}
	return strings.Join(fields, " ")
}

// titleDashed title-cases the month inside an RFC 850 "06-nov-94" date.
func titleDashed(s string) string {
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if len(p) > 0 && isLetter(p[0]) {
			parts[i] = titleCase(p)
		}
	}
	return strings.Join(parts, "-")
}

func titleCase(s string) string {
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
