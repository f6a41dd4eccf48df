package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

const MockBackendName = "mock"

// MockBackend is a ChatBackend for testing. When Script is set it decides
// every reply; otherwise the backend echoes a shape-valid answer built from
// the Lexicon word map, so engine tests can run the full protocol without a
// live endpoint.
type MockBackend struct {
	// Latency is added to every request.
	Latency time.Duration
	// Script, when non-nil, replaces the default echo behavior.
	Script func(messages []Message, jsonMode bool) (string, error)
	// Lexicon maps source words to target words for the echo path.
	Lexicon map[string]string

	mu    sync.Mutex
	calls [][]Message
}

// Name implements ChatBackend.
func (m *MockBackend) Name() string { return MockBackendName }

// Send implements ChatBackend.
func (m *MockBackend) Send(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	m.mu.Unlock()

	if m.Script != nil {
		return m.Script(messages, jsonMode)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages")
	}
	payload := messages[len(messages)-1].Content
	if jsonMode {
		var req map[string]string
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", fmt.Errorf("mock received non-JSON payload: %w", err)
		}
		out := make(map[string]string, len(req))
		for k, v := range req {
			out[k] = m.lookup(v)
		}
		resp, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(resp), nil
	}
	lines := strings.Split(payload, "\n")
	for i, l := range lines {
		lines[i] = m.lookup(l)
	}
	return strings.Join(lines, "\n"), nil
}

// Calls returns a copy of every message history the backend has seen.
func (m *MockBackend) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

func (m *MockBackend) lookup(s string) string {
	if t, ok := m.Lexicon[s]; ok {
		return t
	}
	return s
}

// MockTranslator is a scripted Translator for pipeline tests. It marks
// every untranslated line with its name after an optional delay, which
// makes lock contention observable.
type MockTranslator struct {
	// TranslatorName defaults to "mock".
	TranslatorName string
	// Delay is slept while the caller holds the task lock.
	Delay time.Duration
	// Err, when non-nil, is returned without touching the episode.
	Err error
}

// Name implements Translator.
func (m *MockTranslator) Name() string {
	if m.TranslatorName == "" {
		return "mock"
	}
	return m.TranslatorName
}

// Translate implements Translator.
func (m *MockTranslator) Translate(ctx context.Context, svc *svcctx.Services, ep *book.Episode, t *book.Task, ch *book.Chapter, b *book.Book) error {
	if m.Err != nil {
		return m.Err
	}
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	for i := range ep.Lines {
		line := &ep.Lines[i]
		if line.Blank() || line.Translated != nil {
			continue
		}
		line.SetTranslation(m.Name(), fmt.Sprintf("[%s] %s", m.Name(), line.Content))
	}
	if ep.TitleTranslated == nil {
		ep.TitleTranslated = ptr(fmt.Sprintf("[%s] %s", m.Name(), ep.Title))
	}
	if b != nil {
		if err := svc.Store.Upsert(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
