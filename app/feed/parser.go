package feed

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:    strings.TrimSpace(feed.Title),
		Language: strings.TrimSpace(feed.Language),
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item))
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Entry {
	return Entry{
		Title:       item.Title,
		Link:        strings.TrimSpace(item.Link),
		Summary:     item.Description,
		PublishedAt: p.publishedAt(item),
	}
}

// publishedAt prefers the published timestamp over the updated one. gofeed
// already parses the common layouts; dateparse picks up the stragglers.
func (p *Parser) publishedAt(item *gofeed.Item) *time.Time {
	candidates := []struct {
		parsed *time.Time
		raw    string
	}{
		{item.PublishedParsed, item.Published},
		{item.UpdatedParsed, item.Updated},
	}

	for _, c := range candidates {
		if c.parsed != nil {
			utc := c.parsed.UTC()
			return &utc
		}
		if strings.TrimSpace(c.raw) == "" {
			continue
		}
		if t, err := dateparse.ParseAny(strings.TrimSpace(c.raw)); err == nil {
			utc := t.UTC()
			return &utc
		}
	}

	return nil
}
