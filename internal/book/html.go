package book

import "strings"

// HTML rendering of the translated tree, used by the ePub exporter. Each
// level falls back to the original text when no translation exists.

func orOriginal(translated *string, original string) string {
	if translated != nil && *translated != "" {
		return *translated
	}
	return original
}

// HTML renders the episode body: translated title, notes, then one <p> per
// line. Untranslated lines render empty rather than leaking source text.
func (e *Episode) HTML() string {
	var sb strings.Builder
	sb.WriteString("<h3>" + orOriginal(e.TitleTranslated, e.Title) + "</h3>\n")
	sb.WriteString("<p>" + orOriginal(e.NotesTranslated, e.Notes) + "</p>\n")
	sb.WriteString("<hr/>")
	for i := range e.Lines {
		text := ""
		if e.Lines[i].Translated != nil {
			text = *e.Lines[i].Translated
		}
		sb.WriteString("\n<p>" + text + "</p>")
	}
	return sb.String()
}

// HTML renders the chapter heading followed by every episode.
func (c *Chapter) HTML() string {
	parts := make([]string, 0, len(c.Episodes)+1)
	parts = append(parts, "<h2>"+orOriginal(c.TitleTranslated, c.Title)+"</h2>")
	for i := range c.Episodes {
		parts = append(parts, c.Episodes[i].HTML())
	}
	return strings.Join(parts, "\n")
}

// HTML renders the whole book.
func (b *Book) HTML() string {
	parts := make([]string, 0, len(b.Chapters)+3)
	parts = append(parts,
		"<h1>"+orOriginal(b.TitleTranslated, b.Title)+"</h1>",
		"<p>"+orOriginal(b.DescriptionTranslated, b.Description)+"</p>",
		"<hr/>")
	for i := range b.Chapters {
		parts = append(parts, b.Chapters[i].HTML())
	}
	return strings.Join(parts, "\n")
}
