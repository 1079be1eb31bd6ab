package showcase

import (
	"time"
	_ "time/tzdata" // dates resolve IANA zones on hosts without zoneinfo

	"golang.org/x/text/language"
)

// locale holds the localized pieces of a card.
type locale struct {
	lang        string
	themePrefix string
	zone        string // used when no time zone is configured
	formatDate  func(time.Time) string
}

var (
	japanese = locale{
		lang:        "ja",
		themePrefix: "テーマ: ",
		zone:        "Asia/Tokyo",
		formatDate: func(t time.Time) string {
			return t.Format("2006年1月2日")
		},
	}
	english = locale{
		lang:        "en",
		themePrefix: "Theme: ",
		zone:        "UTC",
		formatDate: func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
	}

	supportedTags = []language.Tag{language.Japanese, language.English}
	localeByIndex = []locale{japanese, english}
	matcher       = language.NewMatcher(supportedTags)
)

// resolveLocale picks the closest supported locale; Japanese is the fallback.
func resolveLocale(tag string) locale {
	if tag == "" {
		return japanese
	}
	t, err := language.Parse(tag)
	if err != nil {
		return japanese
	}
	_, idx, confidence := matcher.Match(t)
	if confidence == language.No {
		return japanese
	}
	return localeByIndex[idx]
}

// location returns the zone cards are dated in: name when it loads,
// otherwise the locale's own zone.
func (l locale) location(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(l.zone); err == nil {
		return loc
	}
	return time.UTC
}

// FormatDate formats t the way cards show it for the given locale tag and
// IANA zone name. An empty zone selects the locale's default.
func FormatDate(t time.Time, tag, zone string) string {
	l := resolveLocale(tag)
	return l.formatDate(t.In(l.location(zone)))
}
