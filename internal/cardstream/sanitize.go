package cardstream

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// allowedRichTags is the tag set rich card fields may use. Attributes are dropped.
var allowedRichTags = map[string]bool{
	"p": true, "strong": true, "em": true, "mark": true,
	"ul": true, "ol": true, "li": true, "blockquote": true,
	"h4": true, "h5": true, "br": true, "code": true,
}

// SanitizeRich rewrites an HTML fragment so that it only contains allowed tags.
// Disallowed tags are unwrapped, script and style bodies are removed, and unclosed
// allowed tags are closed at the end.
func SanitizeRich(fragment string) string {
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	var open []string
	skipDepth := 0

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		tok := z.Token()

		switch tt {
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			if tok.Data == "script" || tok.Data == "style" {
				if tt == xhtml.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 || !allowedRichTags[tok.Data] {
				continue
			}
			if tok.Data == "br" {
				b.WriteString("<br>")
				continue
			}
			b.WriteString("<" + tok.Data + ">")
			open = append(open, tok.Data)
		case xhtml.EndTagToken:
			if tok.Data == "script" || tok.Data == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 || !allowedRichTags[tok.Data] || tok.Data == "br" {
				continue
			}
			idx := lastIndexOf(open, tok.Data)
			if idx < 0 {
				continue
			}
			for i := len(open) - 1; i >= idx; i-- {
				b.WriteString("</" + open[i] + ">")
			}
			open = open[:idx]
		case xhtml.TextToken:
			if skipDepth > 0 {
				continue
			}
			b.WriteString(html.EscapeString(tok.Data))
		}
	}

	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}

func lastIndexOf(items []string, v string) int {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] == v {
			return i
		}
	}
	return -1
}
