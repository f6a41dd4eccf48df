package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

const (
	DeepLAPIBaseURL     = "https://api.deepl.com"
	DeepLFreeAPIBaseURL = "https://api-free.deepl.com"
)

// DeepLConfig configures a DeepL translator.
type DeepLConfig struct {
	APIKey string
	// BaseURL defaults to the pro endpoint; free-tier keys use
	// DeepLFreeAPIBaseURL.
	BaseURL        string
	MaxRetries     int
	RetryDelay     time.Duration
	RateLimit      int
	SkipTranslated bool
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// DeepL translates whole episodes through the DeepL REST API. Unlike the
// chat engine it has no session: each episode is one stateless batch, with
// book and chapter metadata passed as document context. Task glossaries are
// uploaded before the batch and deleted after, when DeepL supports the
// language pair.
type DeepL struct {
	name    string
	cfg     DeepLConfig
	client  *http.Client
	limiter *RateLimiter
}

// NewDeepL creates a named DeepL translator.
func NewDeepL(name string, cfg DeepLConfig) *DeepL {
	if name == "" {
		name = "deepl-" + uuid.New().String()[:8]
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DeepLAPIBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &DeepL{
		name:    name,
		cfg:     cfg,
		client:  client,
		limiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name implements Translator.
func (d *DeepL) Name() string { return d.name }

// Translate implements Translator.
func (d *DeepL) Translate(ctx context.Context, svc *svcctx.Services, ep *book.Episode, t *book.Task, ch *book.Chapter, b *book.Book) error {
	logger := svc.Log().With("translator", d.name, "episode", ep.Title)

	var (
		indexes  []int
		contents []string
	)
	for i := range ep.Lines {
		line := &ep.Lines[i]
		if line.Blank() {
			continue
		}
		if d.cfg.SkipTranslated && line.Translated != nil {
			continue
		}
		indexes = append(indexes, i)
		contents = append(contents, line.Content)
	}
	if len(indexes) == 0 && d.metaDone(ep, ch, b) {
		logger.Debug("episode already fully translated")
		return nil
	}
	logger.Info("translating lines", "count", len(indexes))

	docCtx := documentContext(ep, ch, b)

	gid, err := d.uploadGlossary(ctx, logger, t)
	if err != nil {
		return err
	}
	if gid != "" {
		defer func() {
			if derr := d.deleteGlossary(context.WithoutCancel(ctx), gid); derr != nil {
				logger.Warn("failed to delete glossary", "glossary_id", gid, "error", derr)
			}
		}()
	}

	translate := func(texts []string) ([]string, error) {
		return d.translateTexts(ctx, t, texts, docCtx, gid)
	}
	one := func(text string) (*string, error) {
		out, err := translate([]string{text})
		if err != nil {
			return nil, err
		}
		return &out[0], nil
	}

	redo := !d.cfg.SkipTranslated
	if b != nil {
		if b.Title != "" && (redo || b.TitleTranslated == nil) {
			if b.TitleTranslated, err = one(b.Title); err != nil {
				return fmt.Errorf("failed to translate book title: %w", err)
			}
		}
		if b.Description != "" && (redo || b.DescriptionTranslated == nil) {
			if b.DescriptionTranslated, err = one(b.Description); err != nil {
				return fmt.Errorf("failed to translate book description: %w", err)
			}
		}
		if b.Series != "" && (redo || b.SeriesTranslated == nil) {
			if b.SeriesTranslated, err = one(b.Series); err != nil {
				return fmt.Errorf("failed to translate book series: %w", err)
			}
		}
	}
	if ch != nil && ch.Title != "" && (redo || ch.TitleTranslated == nil) {
		if ch.TitleTranslated, err = one(ch.Title); err != nil {
			return fmt.Errorf("failed to translate chapter title: %w", err)
		}
	}
	if ep.Title != "" && (redo || ep.TitleTranslated == nil) {
		if ep.TitleTranslated, err = one(ep.Title); err != nil {
			return fmt.Errorf("failed to translate episode title: %w", err)
		}
	}
	if ep.Notes != "" && (redo || ep.NotesTranslated == nil) {
		if ep.NotesTranslated, err = one(ep.Notes); err != nil {
			return fmt.Errorf("failed to translate episode notes: %w", err)
		}
	}

	if len(indexes) > 0 {
		out, err := translate(contents)
		if err != nil {
			return fmt.Errorf("failed to translate episode lines: %w", err)
		}
		for j, text := range out {
			line := &ep.Lines[indexes[j]]
			line.SetTranslation(d.name, text)
			if strings.TrimSpace(text) == "" {
				logger.Warn("empty translation for non-blank line", "line", line.Content)
			}
		}
	}

	if b != nil {
		if err := svc.Store.Upsert(ctx, b); err != nil {
			return fmt.Errorf("failed to persist book %q: %w", b.Title, err)
		}
	}
	return nil
}

func (d *DeepL) metaDone(ep *book.Episode, ch *book.Chapter, b *book.Book) bool {
	if !d.cfg.SkipTranslated {
		return false
	}
	if b != nil {
		if (b.Title != "" && b.TitleTranslated == nil) ||
			(b.Description != "" && b.DescriptionTranslated == nil) ||
			(b.Series != "" && b.SeriesTranslated == nil) {
			return false
		}
	}
	if ch != nil && ch.Title != "" && ch.TitleTranslated == nil {
		return false
	}
	if (ep.Title != "" && ep.TitleTranslated == nil) ||
		(ep.Notes != "" && ep.NotesTranslated == nil) {
		return false
	}
	return true
}

// documentContext assembles the surrounding metadata DeepL uses to
// disambiguate short lines.
func documentContext(ep *book.Episode, ch *book.Chapter, b *book.Book) string {
	var sb strings.Builder
	if b != nil {
		fmt.Fprintf(&sb, "Book title: %s\n", b.Title)
		if b.Description != "" {
			fmt.Fprintf(&sb, "Book description: %s\n", b.Description)
		}
		if len(b.Tags) > 0 {
			fmt.Fprintf(&sb, "Book tags: %s\n", strings.Join(b.Tags, ","))
		}
	}
	if ch != nil {
		fmt.Fprintf(&sb, "Chapter title: %s\n", ch.Title)
	}
	if ep.Title != "" {
		fmt.Fprintf(&sb, "Episode title: %s\n", ep.Title)
	}
	return sb.String()
}

type deeplTranslateRequest struct {
	Text               []string `json:"text"`
	SourceLang         string   `json:"source_lang,omitempty"`
	TargetLang         string   `json:"target_lang"`
	Context            string   `json:"context,omitempty"`
	SplitSentences     string   `json:"split_sentences,omitempty"`
	PreserveFormatting bool     `json:"preserve_formatting,omitempty"`
	TagHandling        string   `json:"tag_handling,omitempty"`
	GlossaryID         string   `json:"glossary_id,omitempty"`
}

type deeplTranslateResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// translateTexts is one /v2/translate call with bounded retries and a
// strict count check on the result.
func (d *DeepL) translateTexts(ctx context.Context, t *book.Task, texts []string, docCtx, glossaryID string) ([]string, error) {
	req := deeplTranslateRequest{
		Text:               texts,
		SourceLang:         t.SauceLang,
		TargetLang:         t.TargetLang,
		Context:            docCtx,
		SplitSentences:     "0",
		PreserveFormatting: true,
		TagHandling:        "html",
		GlossaryID:         glossaryID,
	}

	var out []string
	err := retry.Do(
		func() error {
			if err := d.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			var resp deeplTranslateResponse
			if err := d.doRequest(ctx, http.MethodPost, "/v2/translate", req, &resp); err != nil {
				if errors.Is(err, ErrRateLimited) {
					d.limiter.Record429()
				}
				return err
			}
			if len(resp.Translations) != len(texts) {
				return &ValidationError{Reason: "translation count mismatch", Want: len(texts), Got: len(resp.Translations)}
			}
			out = make([]string, len(resp.Translations))
			for i, tr := range resp.Translations {
				out[i] = tr.Text
			}
			return nil
		},
		retry.Context(ctx),
		// Attempts counts the initial send, so MaxRetries re-sends need
		// one more.
		retry.Attempts(uint(d.cfg.MaxRetries)+1),
		retry.Delay(d.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	return out, err
}

type deeplLanguagePair struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// uploadGlossary creates a temporary glossary for the task's language pair.
// Returns the empty string when the task carries no glossary or DeepL does
// not support the pair.
func (d *DeepL) uploadGlossary(ctx context.Context, logger *slog.Logger, t *book.Task) (string, error) {
	if len(t.Glossaries) == 0 {
		return "", nil
	}

	var pairs struct {
		SupportedLanguages []deeplLanguagePair `json:"supported_languages"`
	}
	if err := d.doRequest(ctx, http.MethodGet, "/v2/glossary-language-pairs", nil, &pairs); err != nil {
		return "", fmt.Errorf("failed to list glossary language pairs: %w", err)
	}

	supported := false
	for _, p := range pairs.SupportedLanguages {
		if strings.EqualFold(p.SourceLang, t.SauceLang) && strings.EqualFold(p.TargetLang, t.TargetLang) {
			supported = true
			break
		}
	}
	if !supported {
		logger.Warn("glossary pair not supported", "source", t.SauceLang, "target", t.TargetLang)
		return "", nil
	}

	var entries strings.Builder
	for _, g := range t.Glossaries {
		fmt.Fprintf(&entries, "%s\t%s\n", g.Source, g.Target)
	}
	req := map[string]string{
		"name":           "glossary-" + uuid.New().String()[:8],
		"source_lang":    t.SauceLang,
		"target_lang":    t.TargetLang,
		"entries":        entries.String(),
		"entries_format": "tsv",
	}
	var resp struct {
		GlossaryID string `json:"glossary_id"`
	}
	if err := d.doRequest(ctx, http.MethodPost, "/v2/glossaries", req, &resp); err != nil {
		return "", fmt.Errorf("failed to create glossary: %w", err)
	}
	logger.Debug("uploaded glossary", "glossary_id", resp.GlossaryID, "entries", len(t.Glossaries))
	return resp.GlossaryID, nil
}

func (d *DeepL) deleteGlossary(ctx context.Context, id string) error {
	return d.doRequest(ctx, http.MethodDelete, "/v2/glossaries/"+id, nil, nil)
}

// doRequest performs one authenticated API call, decoding a JSON response
// into out when non-nil.
func (d *DeepL) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("deepl rate limited: %w", ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("deepl error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
