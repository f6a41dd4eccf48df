package book

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEpisodeFullyTranslated(t *testing.T) {
	hello := "hello"

	t.Run("blank lines do not count", func(t *testing.T) {
		e := Episode{Lines: []Line{
			{Content: "こんにちは", Translated: &hello},
			{Content: "   "},
			{Content: ""},
		}}
		if !e.FullyTranslated() {
			t.Error("episode with only blank untranslated lines should be fully translated")
		}
	})

	t.Run("untranslated non-blank line", func(t *testing.T) {
		e := Episode{Lines: []Line{
			{Content: "こんにちは", Translated: &hello},
			{Content: "さようなら"},
		}}
		if e.FullyTranslated() {
			t.Error("episode with untranslated content should not be fully translated")
		}
	})

	t.Run("empty episode", func(t *testing.T) {
		e := Episode{}
		if !e.FullyTranslated() {
			t.Error("empty episode should be fully translated")
		}
	})
}

func TestBookLookups(t *testing.T) {
	b := Book{
		Title:  "本",
		Author: "author",
		Chapters: []*Chapter{
			{Title: "第一章", Episodes: []*Episode{{Title: "ep1"}, {Title: "ep2"}}},
			{Title: "第二章"},
		},
	}

	ch := b.Chapter("第一章")
	if ch == nil {
		t.Fatal("expected chapter lookup to succeed")
	}
	if ep := ch.Episode("ep2"); ep == nil {
		t.Error("expected episode lookup to succeed")
	}
	if ch := b.Chapter("missing"); ch != nil {
		t.Error("expected nil for missing chapter")
	}

	// Lookups must return pointers into the tree, not copies.
	ch.Episode("ep1").Lines = append(ch.Episode("ep1").Lines, Line{Content: "x"})
	if len(b.Chapters[0].Episodes[0].Lines) != 1 {
		t.Error("episode lookup returned a copy instead of a pointer")
	}
}

func TestEpisodePointerStableAcrossAppends(t *testing.T) {
	ch := &Chapter{Title: "第一章", Episodes: []*Episode{{Title: "e1"}}}
	b := Book{Chapters: []*Chapter{ch}}

	ep := ch.Episode("e1")
	for i := 0; i < 32; i++ {
		ch.Episodes = append(ch.Episodes, &Episode{Title: "filler"})
		b.Chapters = append(b.Chapters, &Chapter{Title: "filler"})
	}

	// Writes through a reference taken before the appends must land in
	// the tree the book still holds.
	ep.TitleTranslated = &ep.Title
	if got := b.Chapters[0].Episode("e1"); got != ep {
		t.Fatal("episode reference invalidated by append")
	}
	if b.Chapters[0].Episode("e1").TitleTranslated == nil {
		t.Error("write through held reference lost")
	}
}

func TestAddTag(t *testing.T) {
	var b Book
	b.AddTag("fantasy")
	b.AddTag("isekai")
	b.AddTag("fantasy")
	if len(b.Tags) != 2 {
		t.Errorf("tags = %v, want set semantics", b.Tags)
	}
}

func TestTimeMetaStale(t *testing.T) {
	m := NewTimeMeta()
	if m.Stale(m.SavedAt.Add(-time.Hour)) {
		t.Error("entity saved after source update should not be stale")
	}
	if !m.Stale(m.SavedAt.Add(time.Hour)) {
		t.Error("entity saved before source update should be stale")
	}
}

func TestBookJSONRoundTrip(t *testing.T) {
	trans := "你好"
	in := Book{
		Title:  "テスト",
		Author: "作者",
		URL:    "https://example.com/novel/1",
		Tags:   []string{"fantasy"},
		Chapters: []*Chapter{{
			Title: "",
			Episodes: []*Episode{{
				Title: "第1話",
				Lines: []Line{{
					Content:    "こんにちは",
					Translated: &trans,
					Candidates: map[string]string{"gpt": "你好", "deepl": "您好"},
				}},
				TimeMeta: NewTimeMeta(),
			}},
		}},
		TimeMeta: NewTimeMeta(),
	}

	data, err := json.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Book
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	line := out.Chapters[0].Episodes[0].Lines[0]
	if line.Translated == nil || *line.Translated != "你好" {
		t.Errorf("translated = %v, want 你好", line.Translated)
	}
	if line.Candidates["deepl"] != "您好" {
		t.Errorf("candidates = %v, want both backends preserved", line.Candidates)
	}
}

func TestTaskSessions(t *testing.T) {
	task := &Task{URL: "https://example.com"}
	task.Lock()
	defer task.Unlock()

	if _, ok := task.Session("gpt"); ok {
		t.Error("expected no session before SetSession")
	}
	task.SetSession(fakeSession("gpt"))
	s, ok := task.Session("gpt")
	if !ok || s.Backend() != "gpt" {
		t.Errorf("session lookup = %v, %v", s, ok)
	}
}

type fakeSession string

func (f fakeSession) Backend() string { return string(f) }
