package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

const (
	semrushBaseURL      = "https://api.semrush.com/"
	semrushMaxKeywords  = 10000
	semrushReportDomain = "domain_organic"
	semrushReportURL    = "url_organic"

	// Ph=keyword, Nq=volume, Cp=cpc, Kd=difficulty, Tr=traffic
	semrushExportColumns = "Ph,Nq,Cp,Kd,Tr"
)

// Semrush fetches organic keyword reports from the Semrush analytics API.
// Responses are semicolon-separated CSV, parsed through the same Reader as
// file uploads so they flow into the Normalizer unchanged.
type Semrush struct {
	apiKey     string
	database   string
	httpClient *http.Client
	limiter    *rate.Limiter
	reader     *Reader
}

// NewSemrush creates a client for the given regional database ("us", "uk",
// "es", ...). Semrush enforces a requests-per-second quota per key, so calls
// are throttled client-side to one per second.
func NewSemrush(apiKey, database string, httpClient *http.Client) *Semrush {
	if database == "" {
		database = "us"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Semrush{
		apiKey:     apiKey,
		database:   database,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		reader:     NewReader(),
	}
}

// DomainOrganic fetches the keywords a domain ranks for organically.
func (s *Semrush) DomainOrganic(ctx context.Context, domain string, limit int) ([]keyword.RawRow, error) {
	return s.fetch(ctx, semrushReportDomain, "domain", domain, limit)
}

// URLOrganic fetches the keywords a single URL ranks for.
func (s *Semrush) URLOrganic(ctx context.Context, pageURL string, limit int) ([]keyword.RawRow, error) {
	return s.fetch(ctx, semrushReportURL, "url", pageURL, limit)
}

func (s *Semrush) fetch(ctx context.Context, report, targetParam, target string, limit int) ([]keyword.RawRow, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("semrush API key not configured")
	}
	if limit <= 0 || limit > semrushMaxKeywords {
		limit = semrushMaxKeywords
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("type", report)
	params.Set("key", s.apiKey)
	params.Set(targetParam, target)
	params.Set("database", s.database)
	params.Set("display_limit", strconv.Itoa(limit))
	params.Set("export_columns", semrushExportColumns)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semrushBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("semrush request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read semrush response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("semrush HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	text := strings.TrimSpace(string(body))
	// API-level errors come back as 200 with an "ERROR nn :: message" body.
	if strings.HasPrefix(text, "ERROR") {
		if strings.Contains(text, "NOTHING FOUND") {
			slog.Info("Semrush returned no keywords", "report", report, "target", target)
			return nil, nil
		}
		return nil, fmt.Errorf("semrush API error: %s", text)
	}

	rows, err := s.reader.Run(strings.NewReader(text), target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse semrush response: %w", err)
	}

	slog.Info("Fetched semrush report", "report", report, "target", target, "rows", len(rows))
	return rows, nil
}
