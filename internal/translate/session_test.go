package translate

import (
	"strings"
	"testing"
)

func TestSessionSnapshotRestore(t *testing.T) {
	s := NewSession("mock")
	s.Append(RoleSystem, "prompt")
	s.LockPrefix()

	snap := s.Snapshot()
	s.Append(RoleUser, "a failed request")
	s.Append(RoleAssistant, "garbage")
	s.Restore(snap)

	if s.Len() != 1 {
		t.Fatalf("Len() = %d after restore, want 1", s.Len())
	}
	if s.Messages()[0].Content != "prompt" {
		t.Errorf("restored content = %q", s.Messages()[0].Content)
	}
}

func TestSessionTrim(t *testing.T) {
	s := NewSession("mock")
	s.Append(RoleSystem, strings.Repeat("p", 10))
	s.Append(RoleUser, strings.Repeat("e", 10))
	s.Append(RoleAssistant, strings.Repeat("e", 10))
	s.LockPrefix()

	for i := 0; i < 10; i++ {
		s.Append(RoleUser, strings.Repeat("u", 50))
		s.Append(RoleAssistant, strings.Repeat("a", 50))
	}

	s.Trim(200)

	msgs := s.Messages()
	if msgs[0].Content != strings.Repeat("p", 10) {
		t.Error("locked system prompt was trimmed")
	}
	if msgs[1].Role != RoleUser || msgs[2].Role != RoleAssistant {
		t.Error("locked example exchange was trimmed")
	}
	// Pairs must survive trimming intact.
	for i := 3; i < len(msgs); i += 2 {
		if msgs[i].Role != RoleUser {
			t.Fatalf("message %d role = %q, want user", i, msgs[i].Role)
		}
	}
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	if total > 200 {
		t.Errorf("total chars = %d after Trim(200)", total)
	}
}

func TestSessionTrimDisabled(t *testing.T) {
	s := NewSession("mock")
	s.Append(RoleUser, strings.Repeat("x", 1000))
	s.Trim(0)
	if s.Len() != 1 {
		t.Errorf("Trim(0) dropped messages, Len() = %d", s.Len())
	}
}

func TestSessionBackend(t *testing.T) {
	s := NewSession("openai")
	if s.Backend() != "openai" {
		t.Errorf("Backend() = %q", s.Backend())
	}
}
