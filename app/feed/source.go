package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwatch/displacement-watch/app/item"
)

// Source collects candidates from a single syndicated feed.
type Source struct {
	name       string
	url        string
	httpClient *http.Client
	parser     *Parser
	builder    *Builder
	userAgent  string
	timeout    time.Duration
}

func NewSource(name, url string, httpClient *http.Client, parser *Parser, builder *Builder, userAgent string, timeout time.Duration) *Source {
	return &Source{
		name:       name,
		url:        url,
		httpClient: httpClient,
		parser:     parser,
		builder:    builder,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (s *Source) Name() string {
	return "rss:" + s.name
}

func (s *Source) Collect(ctx context.Context, run Run) ([]item.Item, Stats, error) {
	data, err := s.fetchFeed(ctx)
	if err != nil {
		return nil, Stats{}, err
	}

	metadata, entries, err := s.parser.Run(data)
	if err != nil {
		return nil, Stats{}, err
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		title := NormalizeText(entry.Title)
		summary := NormalizeText(StripHTML(entry.Summary))
		blob := title + " " + summary

		candidates = append(candidates, Candidate{
			Title:        title,
			Link:         entry.Link,
			Snippet:      summary,
			Publisher:    s.name,
			Language:     metadata.Language,
			PublishedAt:  entry.PublishedAt,
			FilterText:   blob,
			KeywordTexts: []string{blob},
		})
	}

	items, stats := s.builder.BuildAll(candidates, run)

	slog.Debug("Feed collected",
		"feed", s.name,
		"title", metadata.Title,
		"entries", stats.Seen,
		"admitted", stats.Admitted,
		"rejected", stats.Rejected)

	return items, stats, nil
}

func (s *Source) fetchFeed(ctx context.Context) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
