package book

import "sync"

// Glossary is one source/target term pair that backends must honor verbatim.
type Glossary struct {
	Source string `json:"source" mapstructure:"source" yaml:"source"`
	Target string `json:"target" mapstructure:"target" yaml:"target"`
}

// SessionHandle is implemented by backend conversation sessions stashed on a
// task so grounding survives across episodes of the same task. Access is
// serialized by the task lock.
type SessionHandle interface {
	// Backend returns the name of the backend that owns the session.
	Backend() string
}

// Task describes one book to acquire, translate, and export. A task owns one
// mutex for its whole lifetime; the holder has exclusive access to the task's
// book tree, its store key, and its backend sessions.
type Task struct {
	URL          string     `json:"url" mapstructure:"url" yaml:"url"`
	FriendlyName string     `json:"friendly_name" mapstructure:"friendly_name" yaml:"friendly_name"`
	SauceLang    string     `json:"sauce_lang" mapstructure:"sauce_lang" yaml:"sauce_lang"`
	TargetLang   string     `json:"target_lang" mapstructure:"target_lang" yaml:"target_lang"`
	Crawler      string     `json:"crawler,omitempty" mapstructure:"crawler" yaml:"crawler,omitempty"`
	Translators  []string   `json:"translators,omitempty" mapstructure:"translators" yaml:"translators,omitempty"`
	Exporters    []string   `json:"exporters,omitempty" mapstructure:"exporters" yaml:"exporters,omitempty"`
	Glossaries   []Glossary `json:"glossaries,omitempty" mapstructure:"glossaries" yaml:"glossaries,omitempty"`

	mu       sync.Mutex
	sessions map[string]SessionHandle
}

// Lock acquires the task's mutual-exclusion lock.
func (t *Task) Lock() { t.mu.Lock() }

// Unlock releases the task's mutual-exclusion lock.
func (t *Task) Unlock() { t.mu.Unlock() }

// Session returns the stashed session for a backend name, if any.
// Callers must hold the task lock.
func (t *Task) Session(backend string) (SessionHandle, bool) {
	s, ok := t.sessions[backend]
	return s, ok
}

// SetSession stashes a backend session on the task.
// Callers must hold the task lock.
func (t *Task) SetSession(s SessionHandle) {
	if t.sessions == nil {
		t.sessions = make(map[string]SessionHandle)
	}
	t.sessions[s.Backend()] = s
}
