package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrFetch wraps every page retrieval failure.
var ErrFetch = errors.New("page fetch failed")

const maxBodyBytes = 5 << 20

// Config controls page retrieval.
type Config struct {
	Timeout       time.Duration
	MinLineLength int
	UserAgent     string
}

// Fetcher downloads a page and reduces it to its readable paragraphs.
type Fetcher struct {
	httpClient    *http.Client
	userAgent     string
	minLineLength int
}

func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		httpClient:    &http.Client{Timeout: timeout},
		userAgent:     cfg.UserAgent,
		minLineLength: cfg.MinLineLength,
	}
}

// FetchReadableText GETs url and returns the lines of visible text longer
// than the configured minimum, joined by newlines.
func (f *Fetcher) FetchReadableText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s returned HTTP %d", ErrFetch, url, resp.StatusCode)
	}

	text, err := ExtractReadableText(io.LimitReader(resp.Body, maxBodyBytes), f.minLineLength)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	log.Printf("[web] fetched %s, %d chars of readable text", url, len(text))
	return text, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"head":     true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"br": true, "pre": true, "blockquote": true, "body": true,
}

// ExtractReadableText parses HTML and keeps the visible text lines whose
// length in characters exceeds minLineLength.
func ExtractReadableText(r io.Reader, minLineLength int) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
		if block {
			sb.WriteString("\n")
		}
	}
	traverse(doc)

	return FilterLines(sb.String(), minLineLength), nil
}

// FilterLines trims every line and keeps those longer than minLength runes.
func FilterLines(text string, minLength int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || utf8.RuneCountInString(line) <= minLength {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
