package translate

import (
	"encoding/json"
	"strings"

	"github.com/jackzampolin/bookbaker/internal/book"
)

// buildPrompt assembles the system-level instruction for a session: the
// language pair, output-shape rules, the glossary, and book-level metadata
// as grounding. Chapter and episode metadata travel with the keyed
// translation requests instead, since they change within a session.
func buildPrompt(t *book.Task, b *book.Book) string {
	sauce := LangName(t.SauceLang)
	target := LangName(t.TargetLang)

	var sb strings.Builder
	sb.WriteString("You are a professional translator. ")
	sb.WriteString("You translate JSON values and plain text from " + sauce +
		" into fluent, natural " + target + ".\n")
	sb.WriteString("Never output the original content. Translated nouns and pronouns must stay consistent.\n")
	sb.WriteString("For JSON input, output exactly the same keys with translated values.\n")
	sb.WriteString("For plain text, output exactly the same number of lines and keep literal \\n symbols unchanged.\n")
	sb.WriteString("Bracketed notations like [base](^reading) and [unit](*count) must be preserved, translating only the base text.\n")

	if len(t.Glossaries) > 0 {
		sb.WriteString("Translation reference to honor verbatim; you will be reminded of it:\n")
		for _, g := range t.Glossaries {
			sb.WriteString(g.Source + " : " + g.Target + "\n")
		}
	}

	if b != nil {
		meta := map[string]any{
			"title":       b.Title,
			"description": b.Description,
			"series":      b.Series,
			"tags":        b.Tags,
		}
		if raw, err := json.Marshal(meta); err == nil {
			sb.WriteString("\nThe book you are translating:\n")
			sb.Write(raw)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// seedSession installs the system prompt and an illustrative exchange that
// establishes the expected input/output shape.
func seedSession(sess *Session, prompt string) {
	sess.Append(RoleSystem, prompt)
	sess.Append(RoleUser, `{"example_title": "りんごはおいしい！"}`)
	sess.Append(RoleAssistant, `{"example_title": "Apples are delicious!"}`)
	sess.LockPrefix()
}

// remind re-injects the glossary as a short exchange. Long sessions are
// observed to forget early grounding, so the engine calls this every
// RemindInterval cycles.
func remind(sess *Session, glossaries []book.Glossary) {
	if len(glossaries) == 0 {
		return
	}
	src := make([]string, len(glossaries))
	dst := make([]string, len(glossaries))
	for i, g := range glossaries {
		src[i] = g.Source
		dst[i] = g.Target
	}
	sess.Append(RoleUser, "Glossary reminder, translate these terms exactly as before:\n["+strings.Join(src, ", ")+"]")
	sess.Append(RoleAssistant, "["+strings.Join(dst, ", ")+"]")
}
