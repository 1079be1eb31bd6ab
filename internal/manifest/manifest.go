// Package manifest fetches, parses and caches the challenge manifest.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tphakala/showcase/internal/errors"
)

// Manifest is the decoded manifest.json.
type Manifest struct {
	Total int     `json:"total"`
	Days  []Entry `json:"days"`
}

// Entry is one challenge day.
type Entry struct {
	Number  int
	Title   string
	Theme   string
	Created *time.Time
	URL     string

	rawCreated string // kept for Check when Created did not parse
}

type entryJSON struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Theme   string `json:"theme,omitempty"`
	Created string `json:"created,omitempty"`
	URL     string `json:"url"`
}

// createdLayouts are tried in order; anything else is treated as absent.
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON decodes an entry, dropping a created timestamp that does not parse.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{
		Number:     raw.Number,
		Title:      raw.Title,
		Theme:      raw.Theme,
		URL:        raw.URL,
		rawCreated: raw.Created,
	}
	if raw.Created != "" {
		e.Created = parseCreated(raw.Created)
	}
	return nil
}

// MarshalJSON encodes the entry in manifest form.
func (e Entry) MarshalJSON() ([]byte, error) {
	raw := entryJSON{
		Number: e.Number,
		Title:  e.Title,
		Theme:  e.Theme,
		URL:    e.URL,
	}
	if e.Created != nil {
		raw.Created = e.Created.Format(time.RFC3339)
	}
	return json.Marshal(raw)
}

func parseCreated(s string) *time.Time {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// Empty reports whether there is nothing to show.
func (m *Manifest) Empty() bool {
	return m == nil || m.Total == 0 || len(m.Days) == 0
}

// Parse decodes and validates a manifest. Unknown fields are ignored.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.New(fmt.Errorf("invalid manifest JSON: %w", err)).
			Component("manifest").
			Category(errors.CategoryFileParsing).
			Build()
	}

	if m.Total < 0 {
		return nil, errors.Newf("invalid manifest: total must not be negative, got %d", m.Total).
			Component("manifest").
			Category(errors.CategoryValidation).
			Build()
	}

	for i := range m.Days {
		if m.Days[i].URL == "" {
			return nil, errors.Newf("invalid manifest: day %d has no url", m.Days[i].Number).
				Component("manifest").
				Category(errors.CategoryValidation).
				Context("index", i).
				Build()
		}
	}

	return &m, nil
}

// Issue is a non-fatal manifest problem reported by Check.
type Issue struct {
	Day     int    `json:"day" yaml:"day"`
	Message string `json:"message" yaml:"message"`
}

// Check lists problems that do not stop the page from rendering.
func Check(m *Manifest) []Issue {
	var issues []Issue
	if m.Total != len(m.Days) {
		issues = append(issues, Issue{
			Message: fmt.Sprintf("total is %d but %d entries are listed", m.Total, len(m.Days)),
		})
	}

	seen := make(map[int]bool, len(m.Days))
	for i := range m.Days {
		e := &m.Days[i]
		if seen[e.Number] {
			issues = append(issues, Issue{Day: e.Number, Message: "duplicate day number"})
		}
		seen[e.Number] = true

		if e.Title == "" {
			issues = append(issues, Issue{Day: e.Number, Message: "missing title"})
		}
		if e.rawCreated != "" && e.Created == nil {
			issues = append(issues, Issue{Day: e.Number, Message: fmt.Sprintf("created %q is not a timestamp", e.rawCreated)})
		}
	}
	return issues
}
