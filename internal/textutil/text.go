// Package textutil normalizes the free text returned by the procurement APIs.
package textutil

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// Fold lower-cases s and strips diacritics ("Estetoscópio" -> "estetoscopio")
// so search terms and upstream text compare regardless of accents.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// ContainsFolded reports whether text contains term after folding both.
// An empty term never matches.
func ContainsFolded(text, term string) bool {
	term = Fold(term)
	if term == "" {
		return false
	}
	return strings.Contains(Fold(text), term)
}

// CleanText collapses runs of whitespace into one space and trims the string.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML removes any markup from s and returns plain, unescaped text.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

// Sanitize is StripHTML followed by CleanText. Invalid UTF-8 is dropped.
func Sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return CleanText(StripHTML(s))
}

// HTMLToText converts an HTML document to plain text, collapsing whitespace.
func HTMLToText(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return CleanText(doc)
	}
	d.Find("script, style").Remove()
	return CleanText(d.Text())
}

// Truncate cuts s to at most max runes. No ellipsis is added.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
