package gdelt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/item"
)

const (
	DefaultEndpoint   = "https://api.gdeltproject.org/api/v2/doc/doc"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRecords = 100
	MaxRecordsLimit   = 250

	seenDateLayout = "20060102T150405Z"
)

type Article struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	SeenDate         string `json:"seendate"`
	Domain           string `json:"domain"`
	Language         string `json:"language"`
	SourceCountry    string `json:"sourcecountry"`
	SourceCollection string `json:"sourcecollection"`
}

type response struct {
	Articles []Article `json:"articles"`
}

// Client queries the GDELT document API in article-list mode.
type Client struct {
	endpoint   string
	query      string
	maxRecords int
	httpClient *http.Client
	builder    *feed.Builder
	userAgent  string
	timeout    time.Duration
}

func NewClient(endpoint, query string, maxRecords int, httpClient *http.Client, builder *feed.Builder, userAgent string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	return &Client{
		endpoint:   endpoint,
		query:      query,
		maxRecords: min(maxRecords, MaxRecordsLimit),
		httpClient: httpClient,
		builder:    builder,
		userAgent:  userAgent,
		timeout:    DefaultTimeout,
	}
}

func (c *Client) Name() string {
	return "gdelt"
}

// Collect runs the configured query. Transport errors, non-2xx responses and
// undecodable bodies are returned as errors.
func (c *Client) Collect(ctx context.Context, run feed.Run) ([]item.Item, feed.Stats, error) {
	articles, err := c.fetchArticles(ctx)
	if err != nil {
		return nil, feed.Stats{}, err
	}

	candidates := make([]feed.Candidate, 0, len(articles))
	for _, a := range articles {
		candidates = append(candidates, toCandidate(a))
	}

	items, stats := c.builder.BuildAll(candidates, run)

	slog.Debug("GDELT articles collected",
		"query", c.query,
		"articles", stats.Seen,
		"admitted", stats.Admitted,
		"rejected", stats.Rejected)

	return items, stats, nil
}

func (c *Client) fetchArticles(ctx context.Context) ([]Article, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("query", c.query)
	params.Set("mode", "ArtList")
	params.Set("maxrecords", strconv.Itoa(c.maxRecords))
	params.Set("format", "json")
	params.Set("sort", "DateDesc")

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query gdelt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode gdelt response: %w", err)
	}

	return body.Articles, nil
}

// toCandidate maps an article onto the shared candidate shape. Keyword hits
// come from the title alone when it matches, otherwise from the title plus
// the collection and domain fields.
func toCandidate(a Article) feed.Candidate {
	title := feed.NormalizeText(a.Title)
	blob := strings.Join([]string{title, a.SourceCollection, a.Domain}, " ")

	return feed.Candidate{
		Title:        title,
		Link:         a.URL,
		Snippet:      feed.NormalizeText(a.SourceCountry),
		Publisher:    strings.TrimSpace(a.Domain),
		Language:     strings.TrimSpace(a.Language),
		PublishedAt:  parseSeenDate(a.SeenDate),
		FilterText:   blob,
		KeywordTexts: []string{title, blob},
	}
}

func parseSeenDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(seenDateLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}
