package database

import (
	"time"

	"github.com/dwatch/displacement-watch/app/item"
)

// SelectionEntry is one row of a day's selection.
type SelectionEntry struct {
	ItemID string
	Score  float64
}

// SelectedItem is a stored item joined with the score it was selected at.
type SelectedItem struct {
	item.Item
	Score float64
}

type ReportMeta struct {
	Date       string
	ReportPath string
	DocxPath   string
	MetaJSON   []byte
	CreatedAt  time.Time
}

type QueryProposal struct {
	ID           int64
	CreatedAt    time.Time
	ProposalJSON []byte
	Rationale    string
}
