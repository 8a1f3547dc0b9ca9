package database

import (
	"context"
	"time"

	"github.com/dwatch/displacement-watch/app/item"
)

type ItemRepository interface {
	UpsertItems(ctx context.Context, items []item.Item) (int, error)
	GetItem(ctx context.Context, id string) (*item.Item, error)
	GetItemCount(ctx context.Context) (int, error)
	GetItemsForWindow(ctx context.Context, start, end time.Time) ([]item.Item, error)
	GetItemsSinceDays(ctx context.Context, days int, now time.Time) ([]item.Item, error)
}

type SelectionRepository interface {
	SaveDailySelection(ctx context.Context, date string, entries []SelectionEntry) error
	GetSelectedItemsForDate(ctx context.Context, date string) ([]SelectedItem, error)
	GetLatestSelectionDate(ctx context.Context) (string, error)
}

type ReportRepository interface {
	SaveReportMeta(ctx context.Context, meta ReportMeta) error
	GetReportMeta(ctx context.Context, date string) (*ReportMeta, error)
	SaveQueryProposal(ctx context.Context, proposal QueryProposal) (int64, error)
	GetLatestQueryProposal(ctx context.Context) (*QueryProposal, error)
}
