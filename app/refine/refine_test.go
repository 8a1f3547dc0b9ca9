package refine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/item"
	"github.com/dwatch/displacement-watch/app/querypack"
)

var refTime = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*database.ItemRepositoryImpl, *database.ReportRepositoryImpl) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "refine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return database.NewItemRepository(db), database.NewReportRepository(db)
}

func storedItem(id, title, domain string, age time.Duration) item.Item {
	published := refTime.Add(-age)
	return item.Item{
		ID:           id,
		CanonicalURL: "https://" + domain + "/" + id,
		URL:          "https://" + domain + "/" + id,
		Title:        title,
		Domain:       domain,
		PublishedAt:  &published,
		RetrievedAt:  refTime,
		Tier:         item.TierB,
		SourceType:   item.SourceFeed,
	}
}

func testPack() *querypack.QueryPack {
	return &querypack.QueryPack{
		Keywords:         []string{"refugee", "displaced", "refugee camp"},
		NegativeKeywords: []string{"football"},
		SourceTiers:      map[string][]string{"A": {"unhcr.org"}},
		RSSFeeds:         []querypack.Feed{{Name: "wire", URL: "https://example.com/rss"}},
		Report:           querypack.Report{MaxTopDevelopments: 8},
	}
}

func TestTitleTokens(t *testing.T) {
	tokens := TitleTokens(`Cross-border "returns" halted: UN/IOM say (again) camps full!`)
	assert.Equal(t, []string{"cross", "border", "returns", "halted", "again", "camps", "full"}, tokens)
	assert.Empty(t, TitleTokens("a an the of"))
}

func TestPropose(t *testing.T) {
	ctx := context.Background()
	items, _ := newStore(t)

	_, err := items.UpsertItems(ctx, []item.Item{
		storedItem("a", "Refugee shelters overcrowded", "unhcr.org", 24*time.Hour),
		storedItem("b", "Shelters close as funding dries", "example.com", 48*time.Hour),
		storedItem("c", "Shelters reopen", "unhcr.org", 72*time.Hour),
		storedItem("old", "Shelters ancient history", "old.org", 20*24*time.Hour),
	})
	require.NoError(t, err)

	qp := testPack()
	proposal, err := Propose(ctx, items, qp, refTime)
	require.NoError(t, err)

	assert.Equal(t, 3, proposal.Observed)
	assert.Equal(t, 2, proposal.Pack.Version, "missing version counts as 1")
	assert.Equal(t, []string{"refugee influx", "refugee agency", "forced displacement", "mass displacement"}, proposal.Additions)
	assert.Equal(t, []string{
		"displaced", "forced displacement", "mass displacement",
		"refugee", "refugee agency", "refugee camp", "refugee influx",
	}, proposal.Pack.Keywords)

	assert.Equal(t, "unhcr.org", proposal.Publishers[0].Name)
	assert.Equal(t, 2, proposal.Publishers[0].Count)
	assert.Equal(t, "shelters", proposal.Tokens[0].Name)
	assert.Equal(t, 3, proposal.Tokens[0].Count)

	assert.Equal(t, qp.NegativeKeywords, proposal.Pack.NegativeKeywords)
	assert.Equal(t, qp.RSSFeeds, proposal.Pack.RSSFeeds)
	assert.Len(t, qp.Keywords, 3, "input pack is not modified")

	assert.True(t, strings.HasPrefix(proposal.Rationale, "# Query Pack Proposal Rationale\n"))
	assert.Contains(t, proposal.Rationale, "Observed items in last 14 days: 3")
	assert.Contains(t, proposal.Rationale, "- forced displacement\n")
	assert.Contains(t, proposal.Rationale, "no source auto-removals")
}

func TestPropose_BumpsExistingVersion(t *testing.T) {
	items, _ := newStore(t)

	qp := testPack()
	qp.Version = 4
	proposal, err := Propose(context.Background(), items, qp, refTime)
	require.NoError(t, err)

	assert.Equal(t, 5, proposal.Pack.Version)
	assert.Equal(t, 0, proposal.Observed)
}

func TestProposal_WriteRecordAndPromote(t *testing.T) {
	ctx := context.Background()
	items, reports := newStore(t)
	dir := t.TempDir()

	proposal, err := Propose(ctx, items, testPack(), refTime)
	require.NoError(t, err)

	packPath, rationalePath, err := proposal.Write(filepath.Join(dir, "out"))
	require.NoError(t, err)

	rationale, err := os.ReadFile(rationalePath)
	require.NoError(t, err)
	assert.Equal(t, proposal.Rationale, string(rationale))

	id, err := proposal.Record(ctx, reports, refTime)
	require.NoError(t, err)
	assert.Positive(t, id)

	latest, err := reports.GetLatestQueryProposal(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Contains(t, string(latest.ProposalJSON), `"refugee influx"`)

	active := filepath.Join(dir, "query_pack.yaml")
	require.NoError(t, testPack().Save(active))
	require.NoError(t, Promote(packPath, active))

	promoted, err := querypack.Load(active)
	require.NoError(t, err)
	assert.Equal(t, 2, promoted.Version)
	assert.Contains(t, promoted.Keywords, "mass displacement")
}

func TestPromote_RejectsInvalidProposal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.yaml")
	dst := filepath.Join(dir, "active.yaml")

	require.NoError(t, os.WriteFile(src, []byte("keywords: []\n"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("keywords: [refugee]\n"), 0o644))

	err := Promote(src, dst)
	require.ErrorIs(t, err, querypack.ErrInvalid)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "keywords: [refugee]\n", string(data))
}

func TestRunner_Propose(t *testing.T) {
	ctx := context.Background()
	items, reports := newStore(t)
	dir := t.TempDir()

	packPath := filepath.Join(dir, "query_pack.yaml")
	require.NoError(t, testPack().Save(packPath))

	runner := NewRunner(items, reports, packPath, filepath.Join(dir, "out"))
	require.NoError(t, runner.Propose(ctx, refTime))

	assert.FileExists(t, filepath.Join(dir, "out", ProposedPackFile))
	assert.FileExists(t, filepath.Join(dir, "out", RationaleFile))

	latest, err := reports.GetLatestQueryProposal(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.CreatedAt.Equal(refTime))
}

func TestRunner_MissingPack(t *testing.T) {
	items, reports := newStore(t)
	runner := NewRunner(items, reports, filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir())

	assert.Error(t, runner.Propose(context.Background(), refTime))
}
