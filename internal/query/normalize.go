// Package query implements the match query pipeline: normalization,
// embedding with lexical fallback, candidate retrieval, dedup filtering, and
// ranking.
package query

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// Normalize canonicalizes raw query text: markup and URLs stripped, lowercase,
// punctuation collapsed to spaces, whitespace collapsed, long input windowed
// to maxChars. Two inputs that differ only in casing or spacing normalize to
// the same string and therefore share a cache fingerprint.
func Normalize(raw string, maxChars int) (string, error) {
	text := stripMarkup(raw)
	if maxChars > 0 && len(text) > maxChars {
		text = window(text, maxChars)
	}

	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", domain.ErrEmptyInput
	}
	if maxChars > 0 && len(out) > maxChars {
		// Back off to a rune boundary; a byte cut could leave invalid UTF-8.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimSpace(out[:cut])
	}
	return out, nil
}

// Tokens splits normalized text into its whitespace-separated terms.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// stripMarkup removes HTML/XML tags and URL tokens. Page excerpts and tweets
// arrive with both; neither carries matchable meaning and URL entropy would
// split cache fingerprints for otherwise identical content.
func stripMarkup(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inTag := false
	for _, r := range raw {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if isURL(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func isURL(w string) bool {
	lw := strings.ToLower(w)
	return strings.HasPrefix(lw, "http://") ||
		strings.HasPrefix(lw, "https://") ||
		strings.HasPrefix(lw, "www.")
}

// window reduces long input to roughly budget characters: the lead sentences
// are always kept, and the remainder contributes only sentences dense in
// numbers or named entities, since those carry the matchable claims of an
// article.
func window(text string, budget int) string {
	sents := sentences(text)
	if len(sents) == 0 {
		return text
	}

	var b strings.Builder
	appendSent := func(s string) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}

	// Lead: keep opening sentences up to half the budget unconditionally.
	i := 0
	for ; i < len(sents) && b.Len() < budget/2; i++ {
		appendSent(sents[i])
	}

	for ; i < len(sents) && b.Len() < budget; i++ {
		if dense(sents[i]) {
			appendSent(sents[i])
		}
	}
	return b.String()
}

// sentences splits text on sentence terminators and newlines.
func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// dense reports whether a sentence carries numeric content or at least two
// capitalized words past its first (a crude named-entity signal).
func dense(s string) bool {
	capitalized := 0
	for i, w := range strings.Fields(s) {
		r := []rune(w)[0]
		if unicode.IsDigit(r) || strings.ContainsFunc(w, unicode.IsDigit) {
			return true
		}
		if i > 0 && unicode.IsUpper(r) {
			capitalized++
		}
	}
	return capitalized >= 2
}
