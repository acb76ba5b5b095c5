package consent

import (
	"math"
	"testing"
	"time"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func TestDecide(t *testing.T) {
	tenDaysAgo := FormatTimestamp(now.Add(-10 * Day))

	tests := []struct {
		name     string
		ctx      Context
		expected Action
	}{
		{
			name:     "feature_disabled_closes",
			ctx:      Context{FeatureEnabled: false, Identity: Anonymous(), Now: now},
			expected: ClosePrompt,
		},
		{
			name:     "admin_surface_closes",
			ctx:      Context{FeatureEnabled: true, AdminSurface: true, Identity: Authenticated("1", ""), Now: now},
			expected: ClosePrompt,
		},
		{
			name:     "anonymous_without_marker_shows",
			ctx:      Context{FeatureEnabled: true, Identity: Anonymous(), Now: now},
			expected: ShowPrompt,
		},
		{
			name:     "anonymous_with_marker_closes",
			ctx:      Context{FeatureEnabled: true, Identity: Anonymous(), LocalMarkerPresent: true, Now: now},
			expected: ClosePrompt,
		},
		{
			name:     "authenticated_never_confirmed_shows",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", ""), Now: now},
			expected: ShowPrompt,
		},
		{
			name:     "authenticated_marker_does_not_count",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", ""), LocalMarkerPresent: true, Now: now},
			expected: ShowPrompt,
		},
		{
			name:     "authenticated_unparsable_shows",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", "yesterday"), Now: now},
			expected: ShowPrompt,
		},
		{
			name:     "authenticated_never_expires",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", tenDaysAgo), Now: now},
			expected: ClosePrompt,
		},
		{
			name:     "authenticated_expired",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", tenDaysAgo), Now: now, ReaffirmDays: 5},
			expected: ShowPrompt,
		},
		{
			name:     "authenticated_still_valid",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", tenDaysAgo), Now: now, ReaffirmDays: 30},
			expected: ClosePrompt,
		},
		{
			name:     "negative_reaffirm_days_never_expire",
			ctx:      Context{FeatureEnabled: true, Identity: Authenticated("1", tenDaysAgo), Now: now, ReaffirmDays: -3},
			expected: ClosePrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := Decide(tt.ctx)
			if action != tt.expected {
				t.Errorf("expected %s, but got %s", tt.expected, action)
			}
			if again := Decide(tt.ctx); again != action {
				t.Errorf("expected repeated evaluation to return %s, but got %s", action, again)
			}
		})
	}
}

func TestDecideReaffirmBoundary(t *testing.T) {
	confirmed := now.Add(-7 * Day)
	identity := Authenticated("42", FormatTimestamp(confirmed))

	tests := []struct {
		name     string
		now      time.Time
		expected Action
	}{
		{name: "one_second_before", now: now.Add(-time.Second), expected: ClosePrompt},
		{name: "exactly_at_expiry", now: now, expected: ShowPrompt},
		{name: "after_expiry", now: now.Add(time.Hour), expected: ShowPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := Decide(Context{FeatureEnabled: true, Identity: identity, Now: tt.now, ReaffirmDays: 7})
			if action != tt.expected {
				t.Errorf("expected %s, but got %s", tt.expected, action)
			}
		})
	}
}

func TestDecideLongReaffirmInterval(t *testing.T) {
	identity := Authenticated("42", FormatTimestamp(now.Add(-time.Hour)))

	tests := []struct {
		name string
		days int
	}{
		{name: "largest_duration", days: 106751},
		{name: "past_duration_range", days: 106752},
		{name: "two_hundred_thousand", days: 200000},
		{name: "one_million", days: 1000000},
		{name: "max_int", days: math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := Decide(Context{FeatureEnabled: true, Identity: identity, Now: now, ReaffirmDays: tt.days})
			if action != ClosePrompt {
				t.Errorf("expected close_prompt for %d days, but got %s", tt.days, action)
			}
		})
	}
}

func TestDecideIgnoresEverythingWhenDisabledOrAdmin(t *testing.T) {
	identities := []Identity{
		Anonymous(),
		Authenticated("1", ""),
		Authenticated("1", FormatTimestamp(now.Add(-100*Day))),
	}

	for _, identity := range identities {
		for _, marker := range []bool{true, false} {
			for _, days := range []int{0, 1, 365} {
				disabled := Context{Identity: identity, LocalMarkerPresent: marker, Now: now, ReaffirmDays: days}
				if action := Decide(disabled); action != ClosePrompt {
					t.Errorf("disabled feature: expected close_prompt for %+v, but got %s", disabled, action)
				}

				admin := disabled
				admin.FeatureEnabled = true
				admin.AdminSurface = true
				if action := Decide(admin); action != ClosePrompt {
					t.Errorf("admin surface: expected close_prompt for %+v, but got %s", admin, action)
				}
			}
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{name: "rfc3339", value: "2025-03-14T12:00:00Z", ok: true},
		{name: "with_offset", value: "2025-03-14T12:00:00+03:00", ok: true},
		{name: "with_millis", value: "2025-03-14T12:00:00.123Z", ok: true},
		{name: "date_only", value: "2025-03-14", ok: true},
		{name: "local_time", value: "2025-03-14T12:00:00", ok: true},
		{name: "local_time_with_millis", value: "2025-03-14T12:00:00.250", ok: true},
		{name: "local_time_space", value: "2025-03-14 12:00:00", ok: true},
		{name: "empty", value: "", ok: false},
		{name: "garbage", value: "not a date", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseTimestamp(tt.value)
			if ok != tt.ok {
				t.Errorf("expected ok=%t for %q, but got %t", tt.ok, tt.value, ok)
			}
		})
	}
}

func TestIsAdminSurface(t *testing.T) {
	tests := []struct {
		path      string
		routeName string
		expected  bool
	}{
		{path: "/admin/plugins", expected: true},
		{path: "/t/welcome/1", routeName: "adminSiteSettings", expected: true},
		{path: "/t/welcome/1", routeName: "topic.fromParams", expected: false},
		{path: "/", expected: false},
	}

	for _, tt := range tests {
		if got := IsAdminSurface(tt.path, tt.routeName); got != tt.expected {
			t.Errorf("IsAdminSurface(%q, %q): expected %t, but got %t", tt.path, tt.routeName, tt.expected, got)
		}
	}
}

func TestRedirectTarget(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{name: "unset", url: "", expected: "/"},
		{name: "blank", url: "   ", expected: "/"},
		{name: "trimmed", url: "  https://example.com/bye ", expected: "https://example.com/bye"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedirectTarget(tt.url); got != tt.expected {
				t.Errorf("expected %q, but got %q", tt.expected, got)
			}
		})
	}
}

func TestParseTimestampZonelessIsLocal(t *testing.T) {
	got, ok := ParseTimestamp("2025-03-14T12:00:00")
	if !ok {
		t.Fatal("expected zone-less timestamp to parse")
	}
	expected := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)
	if !got.Equal(expected) {
		t.Errorf("expected %s, but got %s", expected, got)
	}
}
