// Package urlbuilder builds the deterministic SEO URL for an event, as
// a handful of small pure functions — one per concern (slugify, format
// the date/time, assemble the query string) — so each piece of the
// algorithm is easy to verify in isolation. Any missing required field
// fails the build rather than emitting a partial URL.
package urlbuilder

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const defaultTimezone = "America/Chicago"

// Input is the subset of an event's fields the URL is derived from.
type Input struct {
	ID         int64
	Name       string
	OccursAt   time.Time // must be non-zero
	City       string
	State      string
	VenueName  string
	Category   string
	Quantity   int
	Timezone   string // IANA name; defaults to America/Chicago
	BaseURL    string
}

// Build produces the canonical SEO URL, failing closed when a required
// field is missing (spec §4.4: id, name, occurs_at are mandatory).
func Build(in Input) (string, error) {
	if in.ID == 0 {
		return "", fmt.Errorf("urlbuilder: missing id")
	}
	if strings.TrimSpace(in.Name) == "" {
		return "", fmt.Errorf("urlbuilder: missing name")
	}
	if in.OccursAt.IsZero() {
		return "", fmt.Errorf("urlbuilder: missing occurs_at")
	}

	tzName := in.Timezone
	if tzName == "" {
		tzName = defaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return "", fmt.Errorf("urlbuilder: invalid timezone %q: %w", tzName, err)
	}
	local := in.OccursAt.In(loc)

	namePart := slugify(in.Name)
	cityStatePart := slugify(in.City) + "-" + slugify(in.State)
	venuePart := slugify(in.VenueName)
	dateTimePart := formatDateTime(local)
	catPart := slugify(in.Category)

	base := strings.TrimRight(in.BaseURL, "/")
	path := fmt.Sprintf("%s-tickets_%s_%s_%s_%s", namePart, cityStatePart, venuePart, dateTimePart, catPart)

	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}

	u := fmt.Sprintf("%s/events/%s/%d?listingsType=event&orderListBy=retail_price%%20asc&quantity=%d",
		base, path, in.ID, qty)
	return u, nil
}

func formatDateTime(t time.Time) string {
	day := t.Day()
	dayName := t.Format("Mon")
	monthName := t.Format("Jan")
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "am"
	if t.Hour() >= 12 {
		ampm = "pm"
	}
	return fmt.Sprintf("%s-%d-%s-at-%d:%02d-%s", dayName, day, monthName, hour, t.Minute(), ampm)
}

var (
	spaceDashSpace  = regexp.MustCompile(` - `)
	nonAlphaNumRuns = regexp.MustCompile(`[^a-z0-9()\x00]+`)
	multiDash       = regexp.MustCompile(`-{2}`)
)

// tripleHyphenPlaceholder is excluded from nonAlphaNumRuns so it survives
// the collapse pass and is then expanded to "---".
const tripleHyphenPlaceholder = "\x00"

// slugify implements spec §4.4's slug rule: lowercase, "&"->"and",
// parentheses preserved, " - " becomes "---", other non-alphanumeric
// runs collapse to a single "-", leading/trailing "-" stripped, and
// double hyphens collapse while triple hyphens are preserved.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", "and")
	s = spaceDashSpace.ReplaceAllString(s, tripleHyphenPlaceholder)
	s = nonAlphaNumRuns.ReplaceAllString(s, "-")
	s = strings.ReplaceAll(s, tripleHyphenPlaceholder, "---")

	// Collapse any accidental double hyphens produced by the two passes
	// above, without touching the triple hyphens just inserted.
	s = collapseDoubleNotTriple(s)

	s = strings.Trim(s, "-")
	return s
}

// collapseDoubleNotTriple collapses every run of two or more hyphens to a
// single "-", except runs of exactly three, which are left untouched.
func collapseDoubleNotTriple(s string) string {
	var out strings.Builder
	runeS := []rune(s)
	i := 0
	for i < len(runeS) {
		if runeS[i] == '-' {
			j := i
			for j < len(runeS) && runeS[j] == '-' {
				j++
			}
			n := j - i
			if n == 3 {
				out.WriteString("---")
			} else if n >= 2 {
				out.WriteByte('-')
			} else {
				out.WriteByte('-')
			}
			i = j
			continue
		}
		out.WriteRune(runeS[i])
		i++
	}
	return out.String()
}
