// Package book defines the shared data model for scraped and translated
// serialized fiction: books, chapters, episodes, lines, and the tasks that
// drive them through the pipeline. This package has no dependencies on other
// bookbaker packages to avoid import cycles.
package book

import (
	"strings"
	"time"
)

// TimeMeta tracks the lifecycle instants of an entity. SavedAt is set when
// the entity snapshot is taken; comparing it against a freshly observed
// UpdatedAt is how staleness is detected.
type TimeMeta struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	SavedAt   time.Time  `json:"saved_at"`
}

// NewTimeMeta returns a TimeMeta stamped with the current UTC time.
func NewTimeMeta() TimeMeta {
	return TimeMeta{SavedAt: time.Now().UTC()}
}

// Normalize converts all instants to UTC.
func (m *TimeMeta) Normalize() {
	if m.CreatedAt != nil {
		t := m.CreatedAt.UTC()
		m.CreatedAt = &t
	}
	if m.UpdatedAt != nil {
		t := m.UpdatedAt.UTC()
		m.UpdatedAt = &t
	}
	m.SavedAt = m.SavedAt.UTC()
}

// Stale reports whether the entity's last save predates the source-reported
// update instant, meaning it must be re-acquired.
func (m *TimeMeta) Stale(updatedAt time.Time) bool {
	return m.SavedAt.Before(updatedAt)
}

// ImageRef points at a cover or inline image. The URL may use the http,
// file, or base64 schemes understood by the exporter's fetcher.
type ImageRef struct {
	URL      string   `json:"url"`
	Alt      string   `json:"alt,omitempty"`
	TimeMeta TimeMeta `json:"time_meta"`
}

// Line is a single line of episode content. Two lines are the same line for
// lookup purposes when their source content matches.
type Line struct {
	Content string `json:"content"`
	// Translated is the canonical translation, nil until one is accepted.
	Translated *string `json:"translated,omitempty"`
	// Candidates maps backend names to the translation each proposed.
	Candidates map[string]string `json:"candidates,omitempty"`
}

// Blank reports whether the line has no translatable content. Blank lines
// are never sent to a backend and never count against fullness.
func (l *Line) Blank() bool {
	return strings.TrimSpace(l.Content) == ""
}

// SetTranslation records text as the canonical translation and as the named
// backend's candidate.
func (l *Line) SetTranslation(backend, text string) {
	l.Translated = &text
	if l.Candidates == nil {
		l.Candidates = make(map[string]string)
	}
	l.Candidates[backend] = text
}

// Episode is one installment of serialized content, the smallest unit of
// translation. Episodes are identified by title within their chapter.
type Episode struct {
	Title           string   `json:"title"`
	TitleTranslated *string  `json:"title_translated,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	NotesTranslated *string  `json:"notes_translated,omitempty"`
	Lines           []Line   `json:"lines"`
	TimeMeta        TimeMeta `json:"time_meta"`
}

// FullyTranslated reports whether every non-blank line has a translation.
func (e *Episode) FullyTranslated() bool {
	for i := range e.Lines {
		if e.Lines[i].Blank() {
			continue
		}
		if e.Lines[i].Translated == nil {
			return false
		}
	}
	return true
}

// Chapter groups episodes under one heading. Chapters are identified by
// title within their book. Episodes are held by pointer so a reference
// handed out stays valid while the crawler keeps appending.
type Chapter struct {
	Title           string     `json:"title"`
	TitleTranslated *string    `json:"title_translated,omitempty"`
	Cover           *ImageRef  `json:"cover,omitempty"`
	Episodes        []*Episode `json:"episodes"`
	TimeMeta        TimeMeta   `json:"time_meta"`
}

// Episode returns the episode with the given title, or nil.
func (c *Chapter) Episode(title string) *Episode {
	for _, e := range c.Episodes {
		if e.Title == title {
			return e
		}
	}
	return nil
}

// FullyTranslated reports whether all episodes are fully translated.
func (c *Chapter) FullyTranslated() bool {
	for _, e := range c.Episodes {
		if !e.FullyTranslated() {
			return false
		}
	}
	return true
}

// Book is the root of a translated work. Its persistence identity is the
// (title, author) pair. Chapters are held by pointer for the same reason
// episodes are.
type Book struct {
	Title                 string    `json:"title"`
	TitleTranslated       *string   `json:"title_translated,omitempty"`
	Author                string    `json:"author"`
	URL                   string    `json:"url,omitempty"`
	Series                string    `json:"series,omitempty"`
	SeriesTranslated      *string   `json:"series_translated,omitempty"`
	Tags                  []string  `json:"tags,omitempty"`
	Cover                 *ImageRef `json:"cover,omitempty"`
	Description           string    `json:"description,omitempty"`
	DescriptionTranslated *string   `json:"description_translated,omitempty"`
	TimeMeta              TimeMeta   `json:"time_meta"`
	Chapters              []*Chapter `json:"chapters"`
}

// Key identifies the book in the document store.
type Key struct {
	Title  string
	Author string
}

// Key returns the book's store identity.
func (b *Book) Key() Key {
	return Key{Title: b.Title, Author: b.Author}
}

// Chapter returns the chapter with the given title, or nil.
func (b *Book) Chapter(title string) *Chapter {
	for _, c := range b.Chapters {
		if c.Title == title {
			return c
		}
	}
	return nil
}

// FullyTranslated reports whether all chapters are fully translated.
func (b *Book) FullyTranslated() bool {
	for _, c := range b.Chapters {
		if !c.FullyTranslated() {
			return false
		}
	}
	return true
}

// AddTag appends a tag if not already present; tags behave as a set.
func (b *Book) AddTag(tag string) {
	for _, t := range b.Tags {
		if t == tag {
			return
		}
	}
	b.Tags = append(b.Tags, tag)
}
