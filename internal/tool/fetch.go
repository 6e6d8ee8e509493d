package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	fetchMaxResponseSize = 5 * 1024 * 1024 // 5MB
	fetchDefaultTimeout  = 30 * time.Second
	fetchMaxTimeout      = 120 * time.Second
)

const fetchDescription = `Fetches content from a URL and returns it in the requested format.

Usage:
- The URL must start with http:// or https://
- Use format "markdown" for readable content, "text" for plain text, "html" for raw HTML
- Results are truncated above the 5MB limit`

// FetchTool implements web content fetching.
type FetchTool struct {
	client *http.Client
}

type fetchInput struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Timeout int    `json:"timeout,omitempty"` // seconds
}

// NewFetchTool creates a new fetch tool.
func NewFetchTool() *FetchTool {
	return &FetchTool{client: &http.Client{Timeout: fetchDefaultTimeout}}
}

func (t *FetchTool) Name() string        { return "fetch" }
func (t *FetchTool) Description() string { return fetchDescription }

func (t *FetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params fetchInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return "", fmt.Errorf("URL must start with http:// or https://")
	}
	if params.Format == "" {
		params.Format = "markdown"
	}
	if params.Format != "text" && params.Format != "markdown" && params.Format != "html" {
		return "", fmt.Errorf("format must be 'text', 'markdown', or 'html'")
	}

	timeout := fetchDefaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
		if timeout > fetchMaxTimeout {
			timeout = fetchMaxTimeout
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", params.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "tandem/1.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}
	if resp.ContentLength > fetchMaxResponseSize {
		return "", fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxResponseSize+1))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if len(body) > fetchMaxResponseSize {
		return "", fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")
	isHTML := strings.Contains(contentType, "text/html")

	switch params.Format {
	case "markdown":
		if isHTML {
			return convertHTMLToMarkdown(content)
		}
	case "text":
		if isHTML {
			return extractTextFromHTML(content)
		}
	}
	return content, nil
}

// extractTextFromHTML strips scripts, styles and other non-content elements
// and returns the remaining text.
func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")

	return converter.ConvertString(html)
}
