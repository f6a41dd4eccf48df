package translate

// Message roles mirror the chat-completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a backend conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the persistent conversation for one (task, backend) pairing,
// reused across episodes of the same task so grounding need not be resent.
// The first locked messages (system prompt and example exchanges) survive
// trimming. Access is serialized by the task lock.
type Session struct {
	backend  string
	messages []Message
	locked   int
	// cycle counts exchanges since the last glossary reminder.
	cycle int
}

// NewSession creates a session owned by the named backend.
func NewSession(backend string) *Session {
	return &Session{backend: backend}
}

// Backend implements book.SessionHandle.
func (s *Session) Backend() string { return s.backend }

// Append adds a message to the history.
func (s *Session) Append(role, content string) {
	s.messages = append(s.messages, Message{Role: role, Content: content})
}

// LockPrefix marks the current history as non-trimmable seed content.
func (s *Session) LockPrefix() { s.locked = len(s.messages) }

// Messages returns the current history. Callers must not mutate it.
func (s *Session) Messages() []Message { return s.messages }

// Len returns the number of messages in the history.
func (s *Session) Len() int { return len(s.messages) }

// Snapshot copies the current history so a failed exchange can be rolled
// back without compounding drift across retries.
func (s *Session) Snapshot() []Message {
	snap := make([]Message, len(s.messages))
	copy(snap, s.messages)
	return snap
}

// Restore rewinds the history to a previous snapshot.
func (s *Session) Restore(snap []Message) {
	s.messages = s.messages[:0]
	s.messages = append(s.messages, snap...)
}

// Trim drops the oldest unlocked messages until the total character count
// fits the budget. A budget of zero or less disables trimming. Messages are
// dropped in user/assistant pairs to keep the exchange shape intact.
func (s *Session) Trim(maxChars int) {
	if maxChars <= 0 {
		return
	}
	for s.chars() > maxChars && len(s.messages) > s.locked+1 {
		rest := append([]Message(nil), s.messages[s.locked+2:]...)
		s.messages = append(s.messages[:s.locked], rest...)
	}
}

func (s *Session) chars() int {
	n := 0
	for _, m := range s.messages {
		n += len(m.Content)
	}
	return n
}
