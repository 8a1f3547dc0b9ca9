package feed

import (
	"testing"
	"time"
)

func TestParseRSS2(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    <item>
      <title>Refugee influx strains camp</title>
      <link>https://Example.com/a/?utm_source=x</link>
      <description>&lt;p&gt;Thousands arrive&lt;/p&gt;</description>
      <guid>item-1</guid>
      <pubDate>Fri, 20 Feb 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Undated item</title>
      <link>https://example.com/item2</link>
      <description>No date here</description>
    </item>
  </channel>
</rss>`

	parser := NewParser()
	metadata, entries, err := parser.Run([]byte(rssData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if metadata.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got: %s", metadata.Title)
	}
	if metadata.Language != "en-us" {
		t.Errorf("Expected language 'en-us', got: %s", metadata.Language)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got: %d", len(entries))
	}

	first := entries[0]
	if first.Title != "Refugee influx strains camp" {
		t.Errorf("Expected first title 'Refugee influx strains camp', got: %s", first.Title)
	}
	if first.Link != "https://Example.com/a/?utm_source=x" {
		t.Errorf("Expected raw link to be kept, got: %s", first.Link)
	}
	expected := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(expected) {
		t.Errorf("Expected published %v, got: %v", expected, first.PublishedAt)
	}
	if first.PublishedAt != nil && first.PublishedAt.Location() != time.UTC {
		t.Errorf("Expected UTC timestamp, got location %v", first.PublishedAt.Location())
	}

	second := entries[1]
	if second.PublishedAt != nil {
		t.Errorf("Expected nil published date for undated item, got: %v", second.PublishedAt)
	}
}

func TestParseAtomUpdatedFallback(t *testing.T) {
	atomData := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <entry>
    <title>Displaced families return</title>
    <link href="https://example.org/story"/>
    <id>urn:uuid:1</id>
    <updated>2026-02-19T08:30:00Z</updated>
    <summary>Summary text</summary>
  </entry>
</feed>`

	parser := NewParser()
	_, entries, err := parser.Run([]byte(atomData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got: %d", len(entries))
	}

	expected := time.Date(2026, 2, 19, 8, 30, 0, 0, time.UTC)
	if entries[0].PublishedAt == nil || !entries[0].PublishedAt.Equal(expected) {
		t.Errorf("Expected updated timestamp %v, got: %v", expected, entries[0].PublishedAt)
	}
	if entries[0].Link != "https://example.org/story" {
		t.Errorf("Expected link 'https://example.org/story', got: %s", entries[0].Link)
	}
	if entries[0].Summary != "Summary text" {
		t.Errorf("Expected summary 'Summary text', got: %s", entries[0].Summary)
	}
}

func TestParseUnparsableDate(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>Bad date</title>
      <link>https://example.com/bad</link>
      <pubDate>sometime last week</pubDate>
    </item>
  </channel>
</rss>`

	parser := NewParser()
	_, entries, err := parser.Run([]byte(rssData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got: %d", len(entries))
	}
	if entries[0].PublishedAt != nil {
		t.Errorf("Expected nil published date, got: %v", entries[0].PublishedAt)
	}
}

func TestParseInvalidFeed(t *testing.T) {
	parser := NewParser()
	_, _, err := parser.Run([]byte("this is not a feed"))
	if err == nil {
		t.Error("Expected error for invalid feed data")
	}
}
