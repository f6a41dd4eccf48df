// Package codec provides reversible text transforms that let lossy
// line-oriented or JSON-oriented model prompts carry ruby annotations and
// long literal repetitions without corruption. Each transform pairs an
// escape applied before text is sent to a backend with an unescape applied
// to the response.
package codec

import (
	"regexp"
	"strconv"
	"strings"
)

// RunThreshold is the minimum run length at which a repeated unit is
// compacted into [unit](*count) notation. Shorter runs pass through
// untouched so the round trip stays an identity.
const RunThreshold = 9

var (
	rubyTag  = regexp.MustCompile(`<ruby>(.*?)<rt>(.*?)</rt></ruby>`)
	rubyRP   = regexp.MustCompile(`<rp>.*?</rp>`)
	rubyFlat = regexp.MustCompile(`\[((?:\\.|[^\\\[\]])*)\]\(\^((?:\\.|[^\\()])*)\)`)
	runFlat  = regexp.MustCompile(`\[((?:\\.|[^\\\[\]])+)\]\(\*(\d+)\)`)
)

var metaEscaper = strings.NewReplacer(
	`\`, `\\`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
)

func escapeMeta(s string) string {
	return metaEscaper.Replace(s)
}

func unescapeMeta(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// EscapeRuby rewrites <ruby>base<rt>reading</rt></ruby> markup into the flat
// [base](^reading) notation that survives line-joined and keyed-JSON
// channels. Bracket and parenthesis characters inside the base or reading
// are backslash-escaped so the notation stays unambiguous.
func EscapeRuby(s string) string {
	if !strings.Contains(s, "<ruby>") {
		return s
	}
	return rubyTag.ReplaceAllStringFunc(s, func(m string) string {
		sub := rubyTag.FindStringSubmatch(m)
		base := rubyRP.ReplaceAllString(sub[1], "")
		reading := rubyRP.ReplaceAllString(sub[2], "")
		base = strings.TrimSuffix(strings.TrimPrefix(base, "<rb>"), "</rb>")
		return "[" + escapeMeta(base) + "](^" + escapeMeta(reading) + ")"
	})
}

// UnescapeRuby restores ruby markup from the flat notation. Inputs without
// the ](^ sentinel come back unchanged.
func UnescapeRuby(s string) string {
	if !strings.Contains(s, "](^") {
		return s
	}
	return rubyFlat.ReplaceAllStringFunc(s, func(m string) string {
		sub := rubyFlat.FindStringSubmatch(m)
		return "<ruby>" + unescapeMeta(sub[1]) + "<rt>" + unescapeMeta(sub[2]) + "</rt></ruby>"
	})
}

// EscapeRepetition compacts any run of a single repeated rune of length
// RunThreshold or more into [unit](*count) notation. Backends tend to
// misclassify long literal repetitions as garbage or refuse to echo them.
func EscapeRepetition(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= RunThreshold {
			sb.WriteString("[" + escapeMeta(string(runes[i])) + "](*" + strconv.Itoa(n) + ")")
		} else {
			sb.WriteString(strings.Repeat(string(runes[i]), n))
		}
		i = j
	}
	return sb.String()
}

// UnescapeRepetition expands [unit](*count) notation back into the literal
// run.
func UnescapeRepetition(s string) string {
	if !strings.Contains(s, "](*") {
		return s
	}
	return runFlat.ReplaceAllStringFunc(s, func(m string) string {
		sub := runFlat.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[2])
		if err != nil || n < 0 {
			return m
		}
		return strings.Repeat(unescapeMeta(sub[1]), n)
	})
}

// escapeLiteral backslash-escapes the notation metacharacters of the raw
// text so that source lines which already contain bracket notation cannot
// be mistaken for codec output on the way back.
func escapeLiteral(s string) string {
	if !strings.ContainsAny(s, `\[]()`) {
		return s
	}
	return escapeMeta(s)
}

// unescapeLiteral reverses escapeLiteral over everything left after the
// notation transforms have run.
func unescapeLiteral(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return unescapeMeta(s)
}

// Encode escapes literal metacharacters first, then applies both outbound
// transforms: ruby, then repetition compaction. Escaping first keeps
// Decode(Encode(s)) an identity even when s contains the flat notation
// verbatim.
func Encode(s string) string {
	return EscapeRepetition(EscapeRuby(escapeLiteral(s)))
}

// Decode reverses Encode: repetition expansion, ruby restoration, then
// literal unescaping.
func Decode(s string) string {
	return unescapeLiteral(UnescapeRuby(UnescapeRepetition(s)))
}
