package item

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// IdentityLength is the number of hex characters kept from the digest.
const IdentityLength = 16

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
}

type queryPair struct {
	key   string
	value string
}

// Canonicalize normalizes a URL so that scheme/host case, trailing slashes,
// tracking parameters, parameter order and fragments no longer matter.
// Unparsable input is returned unchanged.
func Canonicalize(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Opaque != "" {
		return raw
	}

	values, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return raw
	}

	pairs := make([]queryPair, 0, len(values))
	for key, vals := range values {
		if _, tracked := trackingParams[key]; tracked {
			continue
		}
		for _, v := range vals {
			pairs = append(pairs, queryPair{key: key, value: v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	if parsed.Scheme != "" {
		b.WriteString(strings.ToLower(parsed.Scheme))
		b.WriteString(":")
	}
	if parsed.Host != "" {
		b.WriteString("//")
		if parsed.User != nil {
			b.WriteString(parsed.User.String())
			b.WriteString("@")
		}
		b.WriteString(strings.ToLower(parsed.Host))
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if parsed.Host == "" && strings.HasPrefix(path, "//") {
		// A hostless "//x" path would read back as authority x.
		path = "/" + strings.TrimLeft(path, "/")
	}
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	if len(pairs) > 0 {
		encoded := make([]string, len(pairs))
		for i, p := range pairs {
			encoded[i] = url.QueryEscape(p.key) + "=" + url.QueryEscape(p.value)
		}
		b.WriteString("?")
		b.WriteString(strings.Join(encoded, "&"))
	}

	return b.String()
}

// Identity derives the deduplication key of an item. The URL is
// canonicalized again so callers may pass either form.
func Identity(canonicalURL, title string) string {
	h := sha256.New()
	h.Write([]byte(Canonicalize(canonicalURL)))
	if t := strings.ToLower(strings.TrimSpace(title)); t != "" {
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))[:IdentityLength]
}

// DomainFromURL returns the lowercased host without a leading "www.".
func DomainFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}

// TierForDomain resolves the trust tier of a domain from configured suffix
// lists. Tiers are tried from most to least trusted so overlapping suffixes
// resolve deterministically.
func TierForDomain(domain string, sourceTiers map[Tier][]string) Tier {
	for _, tier := range Tiers {
		for _, suffix := range sourceTiers[tier] {
			if suffix != "" && strings.HasSuffix(domain, suffix) {
				return tier
			}
		}
	}
	return TierUnknown
}
