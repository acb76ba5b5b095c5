// Package consent holds the consent decision engine: a pure function from the
// visitor's identity, stored confirmation and device marker to a prompt directive.
package consent

import (
	"math"
	"strings"
	"time"
)

// Day is the reaffirmation unit. Calendar days are not used: an interval of
// N days is exactly N*86_400_000ms regardless of DST.
const Day = 24 * time.Hour

const maxReaffirmDays = int64(math.MaxInt64 / Day)

type Action int

const (
	NoPrompt Action = iota
	ShowPrompt
	ClosePrompt
)

func (a Action) String() string {
	switch a {
	case ShowPrompt:
		return "show_prompt"
	case ClosePrompt:
		return "close_prompt"
	default:
		return "no_prompt"
	}
}

// Policy is the process-wide reaffirmation configuration.
type Policy struct {
	Enabled      bool
	ReaffirmDays int
	RedirectURL  string
	StoreIP      bool
}

// Identity describes who is looking at the page. The zero value is an
// anonymous visitor.
type Identity struct {
	UserID string
	// ConfirmedAt is the raw user_consent_confirmed_at value from the
	// current-user payload. Empty means the user never confirmed.
	ConfirmedAt string
}

func Anonymous() Identity { return Identity{} }

func Authenticated(userID, confirmedAt string) Identity {
	return Identity{UserID: userID, ConfirmedAt: confirmedAt}
}

func (i Identity) IsAuthenticated() bool { return i.UserID != "" }

type Context struct {
	FeatureEnabled     bool
	AdminSurface       bool
	Identity           Identity
	LocalMarkerPresent bool
	Now                time.Time
	ReaffirmDays       int
}

// Decide evaluates the rules in precedence order; the first match wins.
func Decide(c Context) Action {
	if !c.FeatureEnabled {
		return ClosePrompt
	}

	if c.AdminSurface {
		return ClosePrompt
	}

	if c.Identity.IsAuthenticated() {
		if NeedsReaffirmation(c.Identity.ConfirmedAt, c.ReaffirmDays, c.Now) {
			return ShowPrompt
		}
		return ClosePrompt
	}

	if c.LocalMarkerPresent {
		return ClosePrompt
	}
	return ShowPrompt
}

// NeedsReaffirmation reports whether a stored confirmation is missing,
// unreadable or older than reaffirmDays at now. The boundary is inclusive.
func NeedsReaffirmation(confirmedAt string, reaffirmDays int, now time.Time) bool {
	confirmed, ok := ParseTimestamp(confirmedAt)
	if !ok {
		return true
	}

	if reaffirmDays <= 0 {
		return false
	}

	// Longer intervals do not fit in a Duration and cannot elapse anyway.
	if int64(reaffirmDays) > maxReaffirmDays {
		return false
	}

	expiresAt := confirmed.Add(time.Duration(reaffirmDays) * Day)
	return !now.Before(expiresAt)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02",
}

// localLayouts carry no zone and are read in local time.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts the ISO-8601 shapes the store and the current-user
// payload have produced over time.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way confirmed_at is persisted.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// IsAdminSurface reports whether a page belongs to the administrative area,
// checking the URL path first and the route name second.
func IsAdminSurface(path, routeName string) bool {
	if strings.HasPrefix(path, "/admin") {
		return true
	}
	return strings.HasPrefix(routeName, "admin")
}
