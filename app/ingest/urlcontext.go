package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability"
)

const siteContextMaxChars = 1200

// URLAnalyzer fetches a page and extracts its readable content to build a
// short site-context block for the clustering prompts, so the model knows
// whose keyword universe it is shaping.
type URLAnalyzer struct {
	httpClient *http.Client
	userAgent  string
}

func NewURLAnalyzer(httpClient *http.Client, userAgent string) *URLAnalyzer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &URLAnalyzer{httpClient: httpClient, userAgent: userAgent}
}

// Run fetches the URL, extracts the main content and returns a trimmed
// context block (title plus leading text). Failures here are non-fatal for a
// run; the caller falls back to an empty site context.
func (a *URLAnalyzer) Run(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error fetching %s: %d %s", pageURL, resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content from %s: %w", pageURL, err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if text == "" {
		return "", fmt.Errorf("no content extracted from %s", pageURL)
	}
	if len(text) > siteContextMaxChars {
		text = text[:siteContextMaxChars]
	}

	var sb strings.Builder
	if article.Title != "" {
		fmt.Fprintf(&sb, "Site: %s (%s)\n", article.Title, pageURL)
	} else {
		fmt.Fprintf(&sb, "Site: %s\n", pageURL)
	}
	sb.WriteString(text)

	slog.Debug("Site context extracted", "url", pageURL, "title", article.Title, "chars", len(text))
	return sb.String(), nil
}
