package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/codec"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

// ChatBackend is a conversational model endpoint. Send submits the full
// message history and returns the assistant's reply; jsonMode asks the
// backend to constrain output to a JSON object. A content-policy rejection
// must surface as an error wrapping ErrContentPolicy.
type ChatBackend interface {
	Name() string
	Send(ctx context.Context, messages []Message, jsonMode bool) (string, error)
}

// EngineConfig tunes the batching, retry, and session policy of an Engine.
type EngineConfig struct {
	// MaxRetries bounds the re-sends of one exchange after its first
	// failure; the episode's translation fails once they are spent.
	MaxRetries int
	// RetryDelay is the fixed backoff between attempts.
	RetryDelay time.Duration
	// BatchSize is the cumulative character budget that closes a line
	// batch, not a fixed line count.
	BatchSize int
	// MaxSessionChars trims the oldest unlocked exchanges past this
	// budget; zero disables trimming.
	MaxSessionChars int
	// RemindInterval re-injects the glossary every N exchanges; zero
	// disables reminders.
	RemindInterval int
	// SkipTranslated leaves lines with an existing translation alone.
	SkipTranslated bool
	// OverwriteMeta re-translates metadata fields even when populated.
	OverwriteMeta bool
	// RateLimit is the backend's request budget per minute.
	RateLimit int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1024
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 60
	}
	return c
}

// Engine drives a chat backend through the generic translation protocol:
// session grounding, keyed metadata exchanges, character-budgeted line
// batches, strict response validation, bounded retries with session
// rollback, and periodic glossary reminders.
type Engine struct {
	name    string
	backend ChatBackend
	cfg     EngineConfig
	limiter *RateLimiter
}

// NewEngine creates a named engine around a chat backend.
func NewEngine(name string, backend ChatBackend, cfg EngineConfig) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		name:    name,
		backend: backend,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name implements Translator.
func (e *Engine) Name() string { return e.name }

// Translate implements Translator.
func (e *Engine) Translate(ctx context.Context, svc *svcctx.Services, ep *book.Episode, t *book.Task, ch *book.Chapter, b *book.Book) error {
	logger := svc.Log().With("translator", e.name, "episode", ep.Title)

	if e.cfg.SkipTranslated && ep.FullyTranslated() && e.metaDone(ep, ch, b) {
		logger.Debug("episode already fully translated")
		return nil
	}

	sess := e.session(t, b)

	if err := e.translateMeta(ctx, svc, sess, t, ep, ch, b); err != nil {
		return err
	}
	if err := e.translateLines(ctx, svc, sess, t, ep, logger); err != nil {
		return err
	}

	if b != nil {
		if err := svc.Store.Upsert(ctx, b); err != nil {
			return fmt.Errorf("failed to persist book %q: %w", b.Title, err)
		}
	}
	return nil
}

// session returns the persistent session for this (task, backend) pairing,
// seeding a new one with the system prompt, an example exchange, and an
// initial glossary reminder. Callers hold the task lock.
func (e *Engine) session(t *book.Task, b *book.Book) *Session {
	if h, ok := t.Session(e.name); ok {
		if s, ok := h.(*Session); ok {
			return s
		}
	}
	s := NewSession(e.name)
	seedSession(s, buildPrompt(t, b))
	remind(s, t.Glossaries)
	t.SetSession(s)
	return s
}

func (e *Engine) metaDone(ep *book.Episode, ch *book.Chapter, b *book.Book) bool {
	if e.cfg.OverwriteMeta {
		return false
	}
	if b != nil {
		if b.TitleTranslated == nil || b.DescriptionTranslated == nil ||
			(b.Series != "" && b.SeriesTranslated == nil) {
			return false
		}
	}
	if ch != nil && ch.Title != "" && ch.TitleTranslated == nil {
		return false
	}
	if ep.TitleTranslated == nil || (ep.Notes != "" && ep.NotesTranslated == nil) {
		return false
	}
	return true
}

// translateMeta translates book, chapter, and episode metadata as keyed
// JSON objects. Each field is translated once and cached; populated fields
// are never re-sent unless the engine is configured to overwrite.
func (e *Engine) translateMeta(ctx context.Context, svc *svcctx.Services, sess *Session, t *book.Task, ep *book.Episode, ch *book.Chapter, b *book.Book) error {
	redo := e.cfg.OverwriteMeta

	if b != nil && (redo || b.TitleTranslated == nil || b.DescriptionTranslated == nil ||
		(b.Series != "" && b.SeriesTranslated == nil)) {
		req := map[string]string{"title": b.Title, "description": b.Description}
		if b.Series != "" {
			req["series"] = b.Series
		}
		out, err := e.exchangeKeyed(ctx, svc, sess, t, req)
		if err != nil {
			return fmt.Errorf("failed to translate book metadata: %w", err)
		}
		b.TitleTranslated = ptr(out["title"])
		b.DescriptionTranslated = ptr(out["description"])
		if b.Series != "" {
			b.SeriesTranslated = ptr(out["series"])
		}
	}

	if ch != nil && ch.Title != "" && (redo || ch.TitleTranslated == nil) {
		out, err := e.exchangeKeyed(ctx, svc, sess, t, map[string]string{"title": ch.Title})
		if err != nil {
			return fmt.Errorf("failed to translate chapter metadata: %w", err)
		}
		ch.TitleTranslated = ptr(out["title"])
	}

	if redo || ep.TitleTranslated == nil || (ep.Notes != "" && ep.NotesTranslated == nil) {
		req := map[string]string{"title": ep.Title}
		if ep.Notes != "" {
			req["notes"] = ep.Notes
		}
		out, err := e.exchangeKeyed(ctx, svc, sess, t, req)
		if err != nil {
			return fmt.Errorf("failed to translate episode metadata: %w", err)
		}
		ep.TitleTranslated = ptr(out["title"])
		if ep.Notes != "" {
			ep.NotesTranslated = ptr(out["notes"])
		}
	}
	return nil
}

// translateLines walks the episode, batching untranslated non-blank lines
// up to the character budget, flushing the final partial batch.
func (e *Engine) translateLines(ctx context.Context, svc *svcctx.Services, sess *Session, t *book.Task, ep *book.Episode, logger *slog.Logger) error {
	var (
		indexes  []int
		contents []string
		chars    int
	)

	flush := func() error {
		if len(indexes) == 0 {
			return nil
		}
		out, err := e.exchangeLines(ctx, svc, sess, t, contents)
		if err != nil {
			return err
		}
		for j, v := range out {
			line := &ep.Lines[indexes[j]]
			decoded := codec.Decode(v)
			line.SetTranslation(e.name, decoded)
			if strings.TrimSpace(decoded) == "" {
				// Suspected silent failure, accepted but flagged.
				logger.Warn("empty translation for non-blank line", "line", line.Content)
			}
		}
		indexes = indexes[:0]
		contents = contents[:0]
		chars = 0
		return nil
	}

	for i := range ep.Lines {
		line := &ep.Lines[i]
		if line.Blank() {
			continue
		}
		if e.cfg.SkipTranslated && line.Translated != nil {
			continue
		}
		indexes = append(indexes, i)
		contents = append(contents, codec.Encode(line.Content))
		chars += utf8.RuneCountInString(line.Content)
		if chars > e.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// exchangeKeyed sends a keyed JSON payload and validates that the response
// keys exactly equal the request keys.
func (e *Engine) exchangeKeyed(ctx context.Context, svc *svcctx.Services, sess *Session, t *book.Task, req map[string]string) (map[string]string, error) {
	keys := make([]string, 0, len(req))
	for k := range req {
		keys = append(keys, k)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize keyed request: %w", err)
	}

	var out map[string]string
	err = e.exchange(ctx, svc, sess, t, string(payload), true, func(raw string) error {
		parsed, perr := parseKeyed(raw, keys)
		if perr != nil {
			return perr
		}
		out = parsed
		return nil
	})
	return out, err
}

// exchangeLines sends a newline-joined line batch and validates the
// response line count. Literal newlines inside a line are escaped before
// joining and restored after the split.
func (e *Engine) exchangeLines(ctx context.Context, svc *svcctx.Services, sess *Session, t *book.Task, lines []string) ([]string, error) {
	escaped := make([]string, len(lines))
	for i, l := range lines {
		escaped[i] = strings.ReplaceAll(l, "\n", `\n`)
	}
	payload := strings.Join(escaped, "\n")

	var out []string
	err := e.exchange(ctx, svc, sess, t, payload, false, func(raw string) error {
		parsed, perr := parseLines(raw, len(lines))
		if perr != nil {
			return perr
		}
		out = parsed
		return nil
	})
	return out, err
}

// exchange performs one request/response cycle with bounded retries. The
// session history is rolled back to its pre-attempt state between retries
// so failed attempts do not compound drift; content-policy rejections
// propagate immediately.
func (e *Engine) exchange(ctx context.Context, svc *svcctx.Services, sess *Session, t *book.Task, payload string, jsonMode bool, accept func(raw string) error) error {
	logger := svc.Log().With("translator", e.name)

	sess.Trim(e.cfg.MaxSessionChars)
	snap := sess.Snapshot()

	err := retry.Do(
		func() error {
			sess.Restore(snap)
			sess.Append(RoleUser, payload)

			if err := e.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			raw, err := e.backend.Send(ctx, sess.Messages(), jsonMode)
			if err != nil {
				if errors.Is(err, ErrContentPolicy) {
					return retry.Unrecoverable(err)
				}
				if errors.Is(err, ErrRateLimited) {
					e.limiter.Record429()
				}
				return err
			}
			logger.Debug("received response", "chars", len(raw))
			if err := accept(raw); err != nil {
				return err
			}
			sess.Append(RoleAssistant, raw)
			return nil
		},
		retry.Context(ctx),
		// Attempts counts the initial send, so MaxRetries re-sends need
		// one more.
		retry.Attempts(uint(e.cfg.MaxRetries)+1),
		retry.Delay(e.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("retrying exchange", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		sess.Restore(snap)
		return fmt.Errorf("exchange failed after %d attempts: %w", e.cfg.MaxRetries+1, err)
	}

	sess.cycle++
	if e.cfg.RemindInterval > 0 && sess.cycle >= e.cfg.RemindInterval {
		remind(sess, t.Glossaries)
		sess.cycle = 0
	}
	return nil
}

func ptr(s string) *string { return &s }
