package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var _ SelectionRepository = (*SelectionRepositoryImpl)(nil)

type SelectionRepositoryImpl struct {
	db *DB
}

func NewSelectionRepository(db *DB) *SelectionRepositoryImpl {
	return &SelectionRepositoryImpl{db: db}
}

// SaveDailySelection replaces the whole selection for date. Entries are
// written as given; a repeated item id keeps its last score.
func (r *SelectionRepositoryImpl) SaveDailySelection(ctx context.Context, date string, entries []SelectionEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM daily_selected WHERE date = ?", date); err != nil {
		return fmt.Errorf("failed to clear selection for %s: %w", date, err)
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_selected (date, item_id, score) VALUES (?, ?, ?)
			ON CONFLICT(date, item_id) DO UPDATE SET score = excluded.score
		`, date, entry.ItemID, entry.Score)
		if err != nil {
			return fmt.Errorf("failed to save selection entry %s: %w", entry.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit selection: %w", err)
	}

	return nil
}

// GetSelectedItemsForDate joins the date's selection with the item store.
// Entries whose item is missing are skipped.
func (r *SelectionRepositoryImpl) GetSelectedItemsForDate(ctx context.Context, date string) ([]SelectedItem, error) {
	columns := make([]string, len(itemColumns))
	for i, c := range itemColumns {
		columns[i] = "i." + c
	}

	query := fmt.Sprintf(`
		SELECT %s, d.score
		FROM daily_selected d
		JOIN items i ON i.id = d.item_id
		WHERE d.date = ?
		ORDER BY d.score DESC, COALESCE(i.published_at, i.retrieved_at) DESC
	`, strings.Join(columns, ", "))

	rows, err := r.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get selected items: %w", err)
	}
	defer rows.Close()

	var selected []SelectedItem
	for rows.Next() {
		var score float64
		it, err := scanItem(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selected item row: %w", err)
		}
		selected = append(selected, SelectedItem{Item: it, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating selected item rows: %w", err)
	}

	return selected, nil
}

// GetLatestSelectionDate returns the most recent date with a selection, or
// an empty string when nothing was ever selected.
func (r *SelectionRepositoryImpl) GetLatestSelectionDate(ctx context.Context) (string, error) {
	var date sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT MAX(date) FROM daily_selected").Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest selection date: %w", err)
	}
	return date.String, nil
}
