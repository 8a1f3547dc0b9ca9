package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"time"

	"github.com/dwatch/displacement-watch/app/database"
)

// Channel describes the RSS channel a selection is rendered into.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfURL     string
	Generator   string
	BuiltAt     time.Time // lastBuildDate when there are no items
}

// Generator renders a day's selection as an RSS 2.0 document, in rank order.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(channel Channel, items []database.SelectedItem) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, channel.Title), 4)

	if channel.SelfURL != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfURL)))
	}

	lastBuildDate := channel.BuiltAt
	if len(items) > 0 {
		lastBuildDate = items[0].EffectiveTime()
	}
	if !lastBuildDate.IsZero() {
		g.writeElement(&buf, "lastBuildDate", lastBuildDate.UTC().Format(time.RFC1123Z), 4)
	}
	g.writeElement(&buf, "generator", channel.Generator, 4)

	for _, it := range items {
		g.writeItem(&buf, it)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, it database.SelectedItem) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(it.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", it.Title, 6)
	g.writeElement(buf, "link", cmp.Or(it.URL, it.CanonicalURL), 6)
	g.writeElement(buf, "description", cmp.Or(it.Snippet, "No description available"), 6)
	g.writeElement(buf, "pubDate", it.EffectiveTime().UTC().Format(time.RFC1123Z), 6)

	if it.Publisher != "" {
		buf.WriteString(fmt.Sprintf("      <source url=\"%s\">", html.EscapeString(it.CanonicalURL)))
		xml.EscapeText(buf, []byte(it.Publisher))
		buf.WriteString("</source>\n")
	}

	g.writeElement(buf, "category", "tier:"+string(it.Tier), 6)
	for _, keyword := range it.KeywordsHit {
		g.writeElement(buf, "category", keyword, 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
