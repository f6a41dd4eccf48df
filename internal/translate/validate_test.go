package translate

import (
	"errors"
	"testing"
)

func TestParseKeyed(t *testing.T) {
	keys := []string{"title", "notes"}

	t.Run("valid response", func(t *testing.T) {
		out, err := parseKeyed(`{"title": "Hello", "notes": "World"}`, keys)
		if err != nil {
			t.Fatalf("parseKeyed() error = %v", err)
		}
		if out["title"] != "Hello" || out["notes"] != "World" {
			t.Errorf("parseKeyed() = %v", out)
		}
	})

	t.Run("fenced response", func(t *testing.T) {
		raw := "```json\n{\"title\": \"Hello\", \"notes\": \"World\"}\n```"
		out, err := parseKeyed(raw, keys)
		if err != nil {
			t.Fatalf("parseKeyed() error = %v", err)
		}
		if out["title"] != "Hello" {
			t.Errorf(`out["title"] = %q, want "Hello"`, out["title"])
		}
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := parseKeyed(`{"title": "Hello"}`, keys)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("parseKeyed() error = %v, want ValidationError", err)
		}
	})

	t.Run("extra key", func(t *testing.T) {
		_, err := parseKeyed(`{"title": "a", "notes": "b", "extra": "c"}`, keys)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("parseKeyed() error = %v, want ValidationError", err)
		}
	})

	t.Run("non-string value", func(t *testing.T) {
		_, err := parseKeyed(`{"title": "a", "notes": 7}`, keys)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("parseKeyed() error = %v, want ValidationError", err)
		}
	})

	t.Run("not JSON at all", func(t *testing.T) {
		_, err := parseKeyed("sure, here is the translation:", keys)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("parseKeyed() error = %v, want ValidationError", err)
		}
	})
}

func TestParseLines(t *testing.T) {
	t.Run("exact count", func(t *testing.T) {
		out, err := parseLines("one\ntwo\nthree", 3)
		if err != nil {
			t.Fatalf("parseLines() error = %v", err)
		}
		if len(out) != 3 || out[2] != "three" {
			t.Errorf("parseLines() = %v", out)
		}
	})

	t.Run("trailing newline tolerated", func(t *testing.T) {
		out, err := parseLines("one\ntwo\n", 2)
		if err != nil {
			t.Fatalf("parseLines() error = %v", err)
		}
		if len(out) != 2 {
			t.Errorf("len = %d, want 2", len(out))
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := parseLines("one\ntwo", 3)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("parseLines() error = %v, want ValidationError", err)
		}
		if verr.Want != 3 || verr.Got != 2 {
			t.Errorf("ValidationError = %+v", verr)
		}
	})

	t.Run("escaped newlines restored", func(t *testing.T) {
		out, err := parseLines(`first half\nsecond half`, 1)
		if err != nil {
			t.Fatalf("parseLines() error = %v", err)
		}
		if out[0] != "first half\nsecond half" {
			t.Errorf("out[0] = %q", out[0])
		}
	})
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\nhello\n```", "hello"},
		{"  ```json\n{}\n```  ", "{}"},
	}
	for _, c := range cases {
		if got := stripFences(c.in); got != c.want {
			t.Errorf("stripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
