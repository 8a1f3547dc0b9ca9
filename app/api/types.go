package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/pipeline"
	"github.com/dwatch/displacement-watch/app/tasks"
	"github.com/dwatch/displacement-watch/app/trends"
)

// SelectionReader is the read side of the pipeline the API serves.
type SelectionReader interface {
	SelectedItems(ctx context.Context, date string) ([]database.SelectedItem, error)
	LatestSelection(ctx context.Context) (string, []database.SelectedItem, error)
	Trends(ctx context.Context, now time.Time) (*trends.Snapshot, error)
}

var _ SelectionReader = (*pipeline.Pipeline)(nil)

type GeneratorInterface interface {
	Run(channel feed.Channel, items []database.SelectedItem) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	selections SelectionReader
	itemRepo   database.ItemRepository
	reportRepo database.ReportRepository
	generator  GeneratorInterface
	runner     tasks.DailyRunner
	runOptions pipeline.Options
	scheduler  tasks.TaskSchedulerInterface
	metrics    http.Handler
	baseURL    string
	version    string
	now        func() time.Time
}

type SelectedItemResponse struct {
	Rank         int        `json:"rank"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	CanonicalURL string     `json:"canonical_url"`
	Publisher    string     `json:"publisher"`
	Domain       string     `json:"domain"`
	PublishedAt  *time.Time `json:"published_at"`
	RetrievedAt  time.Time  `json:"retrieved_at"`
	Snippet      string     `json:"snippet"`
	Tier         string     `json:"tier"`
	SourceType   string     `json:"source_type"`
	KeywordsHit  []string   `json:"keywords_hit"`
	Score        float64    `json:"score"`
}

type SelectionResponse struct {
	Date  string                 `json:"date"`
	Count int                    `json:"count"`
	Items []SelectedItemResponse `json:"items"`
	Meta  json.RawMessage        `json:"meta,omitempty"`
}

func NewSelectionResponse(date string, selected []database.SelectedItem) SelectionResponse {
	items := make([]SelectedItemResponse, len(selected))
	for i, s := range selected {
		items[i] = SelectedItemResponse{
			Rank:         i + 1,
			ID:           s.ID,
			Title:        s.Title,
			URL:          s.URL,
			CanonicalURL: s.CanonicalURL,
			Publisher:    s.Publisher,
			Domain:       s.Domain,
			PublishedAt:  s.PublishedAt,
			RetrievedAt:  s.RetrievedAt,
			Snippet:      s.Snippet,
			Tier:         string(s.Tier),
			SourceType:   string(s.SourceType),
			KeywordsHit:  s.KeywordsHit,
			Score:        s.Score,
		}
	}

	return SelectionResponse{
		Date:  date,
		Count: len(items),
		Items: items,
	}
}
