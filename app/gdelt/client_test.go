package gdelt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/item"
)

const articlesJSON = `{
  "articles": [
    {
      "url": "https://www.unhcr.org/news/story?utm_campaign=x&b=2&a=1",
      "title": "  Refugee  arrivals rise ",
      "seendate": "20260220T093000Z",
      "domain": "unhcr.org",
      "language": "English",
      "sourcecountry": "Switzerland"
    },
    {
      "url": "https://example.net/idp",
      "title": "Families leave the city",
      "seendate": "not-a-date",
      "domain": "example.net",
      "language": "French",
      "sourcecollection": "displaced persons coverage"
    },
    {
      "url": "https://example.net/sport",
      "title": "Refugee football team",
      "domain": "example.net"
    },
    {
      "title": "Refugee article without url",
      "domain": "example.net"
    }
  ]
}`

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	builder := feed.NewBuilder(
		feed.NewFilterer([]string{"refugee", "displaced"}, []string{"football"}),
		map[item.Tier][]string{item.TierA: {"unhcr.org"}},
		item.SourceIndex,
	)
	return NewClient(endpoint, `(refugee OR displaced)`, 50, http.DefaultClient, builder, "test-agent")
}

func TestClient_Collect(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(articlesJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	run := feed.Run{ID: "20260220T120000Z", RetrievedAt: time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)}

	items, stats, err := client.Collect(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, "(refugee OR displaced)", query["query"])
	assert.Equal(t, "ArtList", query["mode"])
	assert.Equal(t, "50", query["maxrecords"])
	assert.Equal(t, "json", query["format"])
	assert.Equal(t, "DateDesc", query["sort"])

	require.Len(t, items, 2)
	assert.Equal(t, 4, stats.Seen)
	assert.Equal(t, 2, stats.Admitted)
	assert.Equal(t, 1, stats.Rejected[feed.ReasonNegativeKeyword])
	assert.Equal(t, 1, stats.Rejected[feed.ReasonMissingLink])

	first := items[0]
	assert.Equal(t, "https://www.unhcr.org/news/story?a=1&b=2", first.CanonicalURL)
	assert.Equal(t, "Refugee arrivals rise", first.Title)
	assert.Equal(t, "unhcr.org", first.Domain)
	assert.Equal(t, "unhcr.org", first.Publisher)
	assert.Equal(t, item.TierA, first.Tier)
	assert.Equal(t, item.SourceIndex, first.SourceType)
	assert.Equal(t, []string{"refugee"}, first.KeywordsHit)
	assert.Equal(t, "Switzerland", first.Snippet)
	require.NotNil(t, first.Language)
	assert.Equal(t, "English", *first.Language)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, first.PublishedAt.Equal(time.Date(2026, 2, 20, 9, 30, 0, 0, time.UTC)))

	second := items[1]
	assert.Equal(t, []string{"displaced"}, second.KeywordsHit, "hits should fall back to the collection text")
	assert.Nil(t, second.PublishedAt, "unparsable seendate should leave the timestamp empty")
	assert.Equal(t, item.TierUnknown, second.Tier)
}

func TestClient_CollectHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, _, err := newTestClient(t, server.URL).Collect(context.Background(), feed.Run{RetrievedAt: time.Now()})
	assert.Error(t, err)
}

func TestClient_CollectMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"articles": [`))
	}))
	defer server.Close()

	_, _, err := newTestClient(t, server.URL).Collect(context.Background(), feed.Run{RetrievedAt: time.Now()})
	assert.Error(t, err)
}

func TestNewClient_MaxRecordsBounds(t *testing.T) {
	builder := feed.NewBuilder(feed.NewFilterer([]string{"refugee"}, nil), nil, item.SourceIndex)

	assert.Equal(t, DefaultMaxRecords, NewClient("", "q", 0, http.DefaultClient, builder, "").maxRecords)
	assert.Equal(t, MaxRecordsLimit, NewClient("", "q", 5000, http.DefaultClient, builder, "").maxRecords)
	assert.Equal(t, DefaultEndpoint, NewClient("", "q", 10, http.DefaultClient, builder, "").endpoint)
}

func TestParseSeenDate(t *testing.T) {
	got := parseSeenDate("20260220T093000Z")
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())

	assert.Nil(t, parseSeenDate(""))
	assert.Nil(t, parseSeenDate("2026-02-20"))
}
