// Package detect classifies pasted tool code as a plain HTML document or a
// React component, and wraps React components in a runnable page.
package detect

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	TypeHTML  = "html"
	TypeReact = "react"
)

var reactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+React`),
	regexp.MustCompile(`from\s+['"]react['"]`),
	regexp.MustCompile(`useState|useEffect|useContext|useReducer|useMemo|useCallback`),
	regexp.MustCompile(`ReactDOM\.render|createRoot`),
	regexp.MustCompile(`<[A-Z]\w+\s+`),
	regexp.MustCompile(`<\w+\s+\w+=\{`),
	regexp.MustCompile(`function\s+\w+\s*\([^)]*\)\s*\{\s*return\s*\(`),
	regexp.MustCompile(`const\s+\w+\s*=\s*\([^)]*\)\s*=>\s*\{`),
}

// Detect returns TypeHTML for anything that looks like a full HTML document,
// TypeReact when at least two React markers are present, and TypeHTML
// otherwise.
func Detect(code string) string {
	if isHTMLDocument(code) {
		return TypeHTML
	}
	matches := 0
	for _, re := range reactPatterns {
		if re.MatchString(code) {
			matches++
		}
	}
	if matches >= 2 {
		return TypeReact
	}
	return TypeHTML
}

// isHTMLDocument looks for a doctype or an <html>/<head> start tag.
func isHTMLDocument(code string) bool {
	z := html.NewTokenizer(strings.NewReader(code))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.DoctypeToken:
			if strings.EqualFold(strings.TrimSpace(string(z.Text())), "html") {
				return true
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Html, atom.Head:
				return true
			}
		}
	}
}
