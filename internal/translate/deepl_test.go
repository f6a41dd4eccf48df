package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepLTranslate(t *testing.T) {
	lex := map[string]string{
		"こんにちは":   "你好",
		"さようなら":   "再见",
		"こんにちは世界": "你好世界",
		"挨拶の本":    "问候之书",
		"第一章":     "第一章",
		"第一話":     "第一话",
	}

	var glossaryCreated, glossaryDeleted bool
	var sawContext string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/glossary-language-pairs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"supported_languages": []map[string]string{
				{"source_lang": "ja", "target_lang": "zh"},
			},
		})
	})
	mux.HandleFunc("POST /v2/glossaries", func(w http.ResponseWriter, r *http.Request) {
		glossaryCreated = true
		json.NewEncoder(w).Encode(map[string]string{"glossary_id": "g-123"})
	})
	mux.HandleFunc("DELETE /v2/glossaries/g-123", func(w http.ResponseWriter, r *http.Request) {
		glossaryDeleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v2/translate", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req deeplTranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GlossaryID != "g-123" {
			t.Errorf("glossary_id = %q", req.GlossaryID)
		}
		sawContext = req.Context
		translations := make([]map[string]string, len(req.Text))
		for i, text := range req.Text {
			out, ok := lex[text]
			if !ok {
				out = text
			}
			translations[i] = map[string]string{"text": out}
		}
		json.NewEncoder(w).Encode(map[string]any{"translations": translations})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := testServices(t)
	d := NewDeepL("deepl-test", DeepLConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		SkipTranslated: true,
	})

	task := testTask()
	b := testBook()
	ch := b.Chapters[0]
	ep := ch.Episodes[0]

	if err := d.Translate(context.Background(), svc, ep, task, ch, b); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if ep.Lines[0].Translated == nil || *ep.Lines[0].Translated != "你好" {
		t.Errorf("line 0 = %v", ep.Lines[0].Translated)
	}
	if ep.Lines[1].Translated != nil {
		t.Error("blank line was translated")
	}
	if b.TitleTranslated == nil || *b.TitleTranslated != "你好世界" {
		t.Errorf("book title = %v", b.TitleTranslated)
	}
	if !glossaryCreated {
		t.Error("glossary was not uploaded")
	}
	if !glossaryDeleted {
		t.Error("glossary was not cleaned up")
	}
	if sawContext == "" {
		t.Error("no document context sent")
	}

	if _, err := svc.Store.Get(context.Background(), b.Title, b.Author); err != nil {
		t.Errorf("book not persisted: %v", err)
	}
}

func TestDeepLCountMismatchRetries(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/translate", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req deeplTranslateRequest
		json.NewDecoder(r.Body).Decode(&req)
		n := len(req.Text)
		if calls == 1 {
			n-- // short response on the first attempt
		}
		translations := make([]map[string]string, n)
		for i := 0; i < n; i++ {
			translations[i] = map[string]string{"text": "ok"}
		}
		json.NewEncoder(w).Encode(map[string]any{"translations": translations})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDeepL("deepl-test", DeepLConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxRetries: 3,
		RetryDelay: 1,
	})

	task := testTask()
	out, err := d.translateTexts(context.Background(), task, []string{"a", "b"}, "", "")
	if err != nil {
		t.Fatalf("translateTexts() error = %v", err)
	}
	if len(out) != 2 {
		t.Errorf("len(out) = %d", len(out))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDeepLExhaustsRetriesOnPersistentMismatch(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/translate", func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"translations": []map[string]string{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDeepL("deepl-test", DeepLConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RetryDelay: 1,
	})

	_, err := d.translateTexts(context.Background(), testTask(), []string{"a"}, "", "")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// The first send plus MaxRetries re-sends.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDeepLSkipsUnsupportedGlossaryPair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/glossary-language-pairs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"supported_languages": []map[string]string{
				{"source_lang": "en", "target_lang": "de"},
			},
		})
	})
	mux.HandleFunc("POST /v2/glossaries", func(w http.ResponseWriter, r *http.Request) {
		t.Error("glossary uploaded for unsupported pair")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := testServices(t)
	d := NewDeepL("deepl-test", DeepLConfig{APIKey: "k", BaseURL: srv.URL})

	gid, err := d.uploadGlossary(context.Background(), svc.Log(), testTask())
	if err != nil {
		t.Fatalf("uploadGlossary() error = %v", err)
	}
	if gid != "" {
		t.Errorf("gid = %q, want empty", gid)
	}
}
