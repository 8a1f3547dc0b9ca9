package refine

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/querypack"
	"github.com/dwatch/displacement-watch/app/trends"
)

const (
	ScanDays      = 14
	MinTokenRunes = 4
	TopPublishers = 10
	TopTokens     = 20

	ProposedPackFile = "query_pack.proposed.yaml"
	RationaleFile    = "query_pack.rationale.md"
)

// SafeExpansions lists the narrower phrasings a keyword may be extended with
// without changing what the pack is looking for.
var SafeExpansions = map[string][]string{
	"refugee":              {"refugee influx", "refugee camp", "refugee agency"},
	"displaced":            {"forced displacement", "mass displacement"},
	"internally displaced": {"IDP camp", "IDP settlement"},
	"asylum seeker":        {"asylum application", "asylum claim"},
	"resettlement":         {"resettlement program", "third-country resettlement"},
}

const tokenTrim = ",.():;!?\"'"

// Proposal is a candidate next version of a query pack. It is never applied
// automatically.
type Proposal struct {
	Pack       *querypack.QueryPack
	Additions  []string
	Observed   int
	Publishers []trends.Count
	Tokens     []trends.Count
	Rationale  string
}

// Propose looks at the last ScanDays of stored items and proposes keyword
// expansions for the pack. Sources and negative keywords are left alone.
func Propose(ctx context.Context, items database.ItemRepository, qp *querypack.QueryPack, now time.Time) (*Proposal, error) {
	recent, err := items.GetItemsSinceDays(ctx, ScanDays, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent items: %w", err)
	}

	tokens := trends.NewCounter()
	publishers := trends.NewCounter()
	for _, it := range recent {
		for _, token := range TitleTokens(it.Title) {
			tokens.Add(token)
		}
		publishers.Add(cmp.Or(it.Domain, it.Publisher, trends.UnknownPublisher))
	}

	additions := expansions(qp.Keywords)

	proposed := qp.Clone()
	proposed.Version = max(qp.Version, 1) + 1
	proposed.Keywords = mergeKeywords(qp.Keywords, additions)

	p := &Proposal{
		Pack:       proposed,
		Additions:  additions,
		Observed:   len(recent),
		Publishers: publishers.Top(TopPublishers),
		Tokens:     tokens.Top(TopTokens),
	}
	p.Rationale = p.rationale()

	slog.Info("Query pack proposal generated",
		"version", proposed.Version,
		"observed", p.Observed,
		"additions", len(additions))

	return p, nil
}

// TitleTokens splits a title into the lowercased words counted for a
// proposal.
func TitleTokens(title string) []string {
	title = strings.ToLower(title)
	title = strings.NewReplacer("/", " ", "-", " ").Replace(title)

	var out []string
	for _, field := range strings.Fields(title) {
		token := strings.Trim(field, tokenTrim)
		if len([]rune(token)) < MinTokenRunes {
			continue
		}
		out = append(out, token)
	}
	return out
}

func expansions(keywords []string) []string {
	var out []string
	for _, keyword := range keywords {
		for _, phrase := range SafeExpansions[keyword] {
			if slices.Contains(keywords, phrase) || slices.Contains(out, phrase) {
				continue
			}
			out = append(out, phrase)
		}
	}
	return out
}

func mergeKeywords(keywords, additions []string) []string {
	merged := slices.Concat(keywords, additions)
	slices.Sort(merged)
	return slices.Compact(merged)
}

func (p *Proposal) rationale() string {
	var b strings.Builder

	b.WriteString("# Query Pack Proposal Rationale\n\n")
	b.WriteString("Guardrails: mission unchanged; only safe term expansions proposed; no source auto-removals.\n\n")
	fmt.Fprintf(&b, "Observed items in last %d days: %d\n\n", ScanDays, p.Observed)

	b.WriteString("Top publishers/domains:\n")
	for _, c := range p.Publishers {
		fmt.Fprintf(&b, "- %s (%d)\n", c.Name, c.Count)
	}

	b.WriteString("\nTop title tokens:\n")
	for _, c := range p.Tokens {
		fmt.Fprintf(&b, "- %s (%d)\n", c.Name, c.Count)
	}

	b.WriteString("\nProposed additions:\n")
	for _, k := range p.Additions {
		fmt.Fprintf(&b, "- %s\n", k)
	}

	return b.String()
}

// Write stores the proposed pack and its rationale under dir.
func (p *Proposal) Write(dir string) (packPath, rationalePath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	packPath = filepath.Join(dir, ProposedPackFile)
	if err := p.Pack.Save(packPath); err != nil {
		return "", "", err
	}

	rationalePath = filepath.Join(dir, RationaleFile)
	if err := os.WriteFile(rationalePath, []byte(p.Rationale), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write rationale: %w", err)
	}

	return packPath, rationalePath, nil
}

// Record appends the proposal to the proposal log.
func (p *Proposal) Record(ctx context.Context, reports database.ReportRepository, now time.Time) (int64, error) {
	packJSON, err := json.Marshal(p.Pack)
	if err != nil {
		return 0, fmt.Errorf("failed to encode proposal: %w", err)
	}

	return reports.SaveQueryProposal(ctx, database.QueryProposal{
		CreatedAt:    now,
		ProposalJSON: packJSON,
		Rationale:    p.Rationale,
	})
}

// Promote replaces the active pack at dst with the proposal at src. The
// proposal must be a valid pack.
func Promote(src, dst string) error {
	qp, err := querypack.Load(src)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read proposal: %w", err)
	}

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write query pack: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to replace query pack: %w", err)
	}

	slog.Info("Query pack promoted", "src", src, "dst", dst, "version", qp.Version)
	return nil
}

// Runner proposes the next version of the pack stored at packPath and
// leaves the result under outputDir for review.
type Runner struct {
	items     database.ItemRepository
	reports   database.ReportRepository
	packPath  string
	outputDir string
}

func NewRunner(items database.ItemRepository, reports database.ReportRepository, packPath, outputDir string) *Runner {
	return &Runner{
		items:     items,
		reports:   reports,
		packPath:  packPath,
		outputDir: outputDir,
	}
}

func (r *Runner) Propose(ctx context.Context, now time.Time) error {
	qp, err := querypack.Load(r.packPath)
	if err != nil {
		return err
	}

	proposal, err := Propose(ctx, r.items, qp, now)
	if err != nil {
		return err
	}

	packPath, rationalePath, err := proposal.Write(r.outputDir)
	if err != nil {
		return err
	}

	id, err := proposal.Record(ctx, r.reports, now)
	if err != nil {
		return err
	}

	slog.Info("Query pack proposal written",
		"proposal_id", id,
		"pack", packPath,
		"rationale", rationalePath)

	return nil
}
