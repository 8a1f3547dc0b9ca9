package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// MaxSnippetRunes bounds the stored excerpt length.
const MaxSnippetRunes = 1000

// NormalizeText collapses whitespace runs to single spaces and trims the ends.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// StripHTML returns the text content of an HTML fragment. Plain text and
// fragments that fail to parse come back unchanged.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	// Join text nodes with spaces so adjacent block elements don't fuse words.
	var parts []string
	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			switch goquery.NodeName(child) {
			case "#text":
				parts = append(parts, child.Text())
			case "script", "style":
			default:
				walk(child)
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(parts, " ")
}

func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == maxRunes {
			return s[:i]
		}
		count++
	}
	return s
}
