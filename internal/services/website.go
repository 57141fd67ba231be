package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxWebsiteBytes = 10 * 1024 * 1024

type WebsiteService struct {
	httpClient *http.Client
}

func NewWebsiteService(timeout time.Duration) *WebsiteService {
	return &WebsiteService{httpClient: &http.Client{Timeout: timeout}}
}

// FetchText downloads a page and returns its title and visible text. A URL without
// a scheme is fetched over https.
func (s *WebsiteService) FetchText(ctx context.Context, rawURL string) (title, text string, err error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", &ValidationError{Fields: map[string]string{"url": "must be a valid URL"}}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch website: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", &ValidationError{Fields: map[string]string{"url": fmt.Sprintf("website returned status %d", resp.StatusCode)}}
	}

	title, text, err = extractPageText(io.LimitReader(resp.Body, maxWebsiteBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse website: %w", err)
	}
	if text == "" {
		return "", "", &ValidationError{Fields: map[string]string{"url": "page has no readable text"}}
	}
	return title, text, nil
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Svg: true, atom.Iframe: true, atom.Title: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

// extractPageText walks the parsed document, dropping non-content elements and
// collapsing whitespace. Block elements end a line.
func extractPageText(r io.Reader) (string, string, error) {
	doc, err := xhtml.Parse(r)
	if err != nil {
		return "", "", err
	}

	var title string
	var b strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
			}
			if skippedElements[n.DataAtom] {
				return
			}
		}
		if n.Type == xhtml.TextNode {
			if words := strings.Fields(n.Data); len(words) > 0 {
				b.WriteString(strings.Join(words, " "))
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == xhtml.ElementNode && blockElements[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	return title, normalizeExtractedText(b.String()), nil
}
