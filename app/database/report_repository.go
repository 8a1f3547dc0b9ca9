package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var _ ReportRepository = (*ReportRepositoryImpl)(nil)

type ReportRepositoryImpl struct {
	db *DB
}

func NewReportRepository(db *DB) *ReportRepositoryImpl {
	return &ReportRepositoryImpl{db: db}
}

// SaveReportMeta stores the run record for a date, replacing any earlier one.
func (r *ReportRepositoryImpl) SaveReportMeta(ctx context.Context, meta ReportMeta) error {
	metaJSON := string(meta.MetaJSON)
	if metaJSON == "" {
		metaJSON = "{}"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (date, report_path, docx_path, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			report_path = excluded.report_path,
			docx_path = excluded.docx_path,
			meta_json = excluded.meta_json,
			created_at = excluded.created_at
	`, meta.Date, meta.ReportPath, meta.DocxPath, metaJSON, formatTime(meta.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save report meta: %w", err)
	}

	return nil
}

func (r *ReportRepositoryImpl) GetReportMeta(ctx context.Context, date string) (*ReportMeta, error) {
	var (
		meta      ReportMeta
		metaJSON  string
		createdAt string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT date, report_path, docx_path, meta_json, created_at
		FROM reports WHERE date = ?
	`, date).Scan(&meta.Date, &meta.ReportPath, &meta.DocxPath, &metaJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report meta: %w", err)
	}

	meta.MetaJSON = []byte(metaJSON)
	if meta.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &meta, nil
}

// SaveQueryProposal appends a proposal and returns its row id.
func (r *ReportRepositoryImpl) SaveQueryProposal(ctx context.Context, proposal QueryProposal) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO query_proposals (created_at, proposal_json, rationale)
		VALUES (?, ?, ?)
	`, formatTime(proposal.CreatedAt), string(proposal.ProposalJSON), proposal.Rationale)
	if err != nil {
		return 0, fmt.Errorf("failed to save query proposal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get query proposal id: %w", err)
	}

	return id, nil
}

func (r *ReportRepositoryImpl) GetLatestQueryProposal(ctx context.Context) (*QueryProposal, error) {
	var (
		proposal     QueryProposal
		createdAt    string
		proposalJSON string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, proposal_json, rationale
		FROM query_proposals ORDER BY id DESC LIMIT 1
	`).Scan(&proposal.ID, &createdAt, &proposalJSON, &proposal.Rationale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest query proposal: %w", err)
	}

	proposal.ProposalJSON = []byte(proposalJSON)
	if proposal.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &proposal, nil
}
