package repository

import (
	"context"
	"fmt"
	"time"

	"mining-economy/internal/domain"
)

type failureRow struct {
	ID         string `db:"id"`
	BuyerID    string `db:"buyer_id"`
	AncestorID string `db:"ancestor_id"`
	Level      int    `db:"level"`
	Kind       string `db:"kind"`
	Amount     int64  `db:"amount"`
	SourceRef  string `db:"source_ref"`
	Error      string `db:"error"`
	Resolved   bool   `db:"resolved"`
	CreatedAt  int64  `db:"created_at"`
	ResolvedAt *int64 `db:"resolved_at"`
}

func (r failureRow) toDomain() domain.CommissionFailure {
	return domain.CommissionFailure{
		ID:         r.ID,
		BuyerID:    r.BuyerID,
		AncestorID: r.AncestorID,
		Level:      r.Level,
		Kind:       domain.TransactionKind(r.Kind),
		Amount:     r.Amount,
		SourceRef:  r.SourceRef,
		Error:      r.Error,
		Resolved:   r.Resolved,
		CreatedAt:  fromMillis(r.CreatedAt),
		ResolvedAt: fromNullMillis(r.ResolvedAt),
	}
}

func (q *Queries) InsertCommissionFailure(ctx context.Context, f *domain.CommissionFailure) error {
	if f.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		f.ID = id
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO commission_failures
		(id, buyer_id, ancestor_id, level, kind, amount, source_ref, error, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		f.ID, f.BuyerID, f.AncestorID, f.Level, string(f.Kind), f.Amount, f.SourceRef, f.Error, toMillis(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to queue commission failure: %w", err)
	}
	return nil
}

// ListOpenCommissionFailures pages unresolved entries oldest first. offset skips entries the caller
// already gave up on in this pass.
func (q *Queries) ListOpenCommissionFailures(ctx context.Context, offset, limit int) ([]domain.CommissionFailure, error) {
	var rows []failureRow
	err := q.selectAll(ctx, &rows, `SELECT id, buyer_id, ancestor_id, level, kind, amount, source_ref, error, resolved, created_at, resolved_at
		FROM commission_failures WHERE resolved = 0 ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list commission failures: %w", err)
	}
	result := make([]domain.CommissionFailure, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result, nil
}

func (q *Queries) ResolveCommissionFailure(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE commission_failures SET resolved = 1, resolved_at = ? WHERE id = ?`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to resolve commission failure %s: %w", id, err)
	}
	return nil
}
