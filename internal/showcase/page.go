// Package showcase turns a manifest into the showcase page: newest-first
// cards, the empty state and the error panel.
package showcase

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tphakala/showcase/internal/manifest"
)

const (
	emptyCountLabel = "0 challenges"
	errorCountLabel = "Error loading challenges"
)

// Options controls how a page is built.
type Options struct {
	Title  string
	Lazy   bool   // lazy variant: cards carry a deferred frame
	Locale string // BCP 47 tag for dates and labels, e.g. "ja-JP"
	// TimeZone is the IANA zone dates are shown in. Empty uses the
	// locale's zone: Asia/Tokyo for Japanese, UTC otherwise.
	TimeZone string

	// Frame visibility settings handed to showcase.js.
	Cap        int
	RootMargin int
	// SessionAPI is the visibility session endpoint; empty makes the script
	// enforce the cap in the browser (static output).
	SessionAPI string
	// AssetBase prefixes showcase.css and showcase.js.
	AssetBase string
}

// Page is the view model rendered by Renderer.
type Page struct {
	Title      string
	Lang       string
	CountLabel string
	Cards      []Card
	Empty      bool
	Err        string

	Lazy       bool
	Cap        int
	RootMargin int
	SessionAPI string
	AssetBase  string
}

// Failed reports whether the page shows the error panel.
func (p *Page) Failed() bool {
	return p.Err != ""
}

// Card is one challenge as displayed.
type Card struct {
	Index      int // position in the grid, 0 is the newest card
	Number     int
	Title      string
	Theme      string
	ThemeLabel string // localized prefix + theme, empty without a theme
	Created    *time.Time
	Date       string // localized date, empty without a timestamp
	DateTime   string // machine-readable created timestamp
	URL        string
	Latest     bool
	Lazy       bool
	FrameTitle string
}

// CountLabel returns "N challenge completed" for one and "N challenges
// completed" otherwise, with thousands separators.
func CountLabel(total int) string {
	noun := "challenges"
	if total == 1 {
		noun = "challenge"
	}
	return humanize.Comma(int64(total)) + " " + noun + " completed"
}

// BuildPage builds the page for m. Cards are newest first and the first one
// is flagged latest. A manifest with total 0 or no entries yields the empty state.
func BuildPage(m *manifest.Manifest, opts Options) Page {
	loc := resolveLocale(opts.Locale)
	page := basePage(opts, loc)

	if m.Empty() {
		page.Empty = true
		page.CountLabel = emptyCountLabel
		return page
	}

	page.CountLabel = CountLabel(m.Total)
	zone := loc.location(opts.TimeZone)
	page.Cards = make([]Card, 0, len(m.Days))
	for i := len(m.Days) - 1; i >= 0; i-- {
		card := buildCard(&m.Days[i], opts.Lazy, loc, zone)
		card.Index = len(page.Cards)
		page.Cards = append(page.Cards, card)
	}
	page.Cards[0].Latest = true
	return page
}

// ErrorPage builds the error panel page for err.
func ErrorPage(err error, opts Options) Page {
	page := basePage(opts, resolveLocale(opts.Locale))
	page.CountLabel = errorCountLabel
	page.Err = err.Error()
	return page
}

func basePage(opts Options, loc locale) Page {
	return Page{
		Title:      opts.Title,
		Lang:       loc.lang,
		Lazy:       opts.Lazy,
		Cap:        opts.Cap,
		RootMargin: opts.RootMargin,
		SessionAPI: opts.SessionAPI,
		AssetBase:  opts.AssetBase,
	}
}

func buildCard(e *manifest.Entry, lazy bool, loc locale, zone *time.Location) Card {
	card := Card{
		Number:     e.Number,
		Title:      e.Title,
		Theme:      e.Theme,
		Created:    e.Created,
		URL:        e.URL,
		Lazy:       lazy,
		FrameTitle: "Day " + strconv.Itoa(e.Number) + " Challenge",
	}
	if e.Theme != "" {
		card.ThemeLabel = loc.themePrefix + e.Theme
	}
	if e.Created != nil {
		card.Date = loc.formatDate(e.Created.In(zone))
		card.DateTime = e.Created.Format(time.RFC3339)
	}
	return card
}
