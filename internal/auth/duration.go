package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var relativeExpiry = regexp.MustCompile(`^(\d+)([dwh])$`)

// expiryDateFormats are tried in order; dates are day first.
var expiryDateFormats = []string{
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02",
}

// ParseExpiration turns a token lifetime into an expiry instant relative to
// now. Accepted forms:
//   - "" or "never": no expiry (nil)
//   - any Go duration, e.g. "90m" or "2h30m"
//   - "30d", "2w", "12h"
//   - a future date "dd/mm/yyyy", "dd/mm/yyyy HH:MM" or "yyyy-mm-dd", in
//     now's location
func ParseExpiration(expiresIn string, now time.Time) (*time.Time, error) {
	if expiresIn == "" || expiresIn == "never" {
		return nil, nil
	}

	if dur, err := time.ParseDuration(expiresIn); err == nil {
		if dur <= 0 {
			return nil, fmt.Errorf("expiration must be positive: %s", expiresIn)
		}
		t := now.Add(dur)
		return &t, nil
	}

	for _, layout := range expiryDateFormats {
		t, err := time.ParseInLocation(layout, expiresIn, now.Location())
		if err != nil {
			continue
		}
		if !t.After(now) {
			return nil, fmt.Errorf("expiration date must be in the future: %s", expiresIn)
		}
		return &t, nil
	}

	m := relativeExpiry.FindStringSubmatch(expiresIn)
	if m == nil {
		return nil, fmt.Errorf("invalid expiration %q (use never, 30d, 2w, 24h, 25/12/2026 or a Go duration)", expiresIn)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return nil, fmt.Errorf("invalid number in expiration: %s", expiresIn)
	}

	var unit time.Duration
	switch m[2] {
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "h":
		unit = time.Hour
	}
	t := now.Add(time.Duration(n) * unit)
	return &t, nil
}
