package ocr

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Substitution replaces a whole-word OCR misread with its intended token.
type Substitution struct {
	From string
	To   string
}

// Substitutions are applied in one pass; order decides precedence between overlapping patterns.
var Substitutions = []Substitution{
	{From: "Rp", To: "Prescription"},
	{From: "int", To: "init"},
	{From: "wwew", To: "www"},
}

// RE2's \s and \b are ASCII-only, so whitespace is spelled out: the C0
// separators, NEL and every Unicode separator (\p{Z}).
const inlineSpace = `\t\v\f\r\x{1c}-\x{1f} \x{85}\p{Z}`

var (
	reParagraphBreak = regexp.MustCompile(`\n[\n` + inlineSpace + `]*\n[\n` + inlineSpace + `]*`)
	reInlineSpace    = regexp.MustCompile(`[` + inlineSpace + `]+`)
)

// Normalize cleans enhanced-pass OCR text:
//  1. runs of blank lines, plus the indentation after them, become one blank line
//  2. runs of other whitespace become one space
//  3. whole-word Substitutions are applied
//  4. the result is trimmed
func Normalize(s string) string {
	s = reParagraphBreak.ReplaceAllString(s, "\n\n")
	s = reInlineSpace.ReplaceAllString(s, " ")
	s = substituteWords(s)
	return strings.TrimFunc(s, isSpace)
}

// substituteWords replaces tokens that sit between word boundaries. Boundaries
// are judged on the input, so a replacement never feeds another match.
func substituteWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if sub, ok := wordAt(s, i); ok {
			b.WriteString(sub.To)
			i += len(sub.From)
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

func wordAt(s string, i int) (Substitution, bool) {
	if !isBoundary(s, i) {
		return Substitution{}, false
	}
	for _, sub := range Substitutions {
		if sub.From != "" && strings.HasPrefix(s[i:], sub.From) && isBoundary(s, i+len(sub.From)) {
			return sub, true
		}
	}
	return Substitution{}, false
}

// isBoundary reports whether exactly one side of byte offset i is a word rune.
func isBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
