package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mining-economy/internal/domain"
)

type transactionRow struct {
	ID             string         `db:"id"`
	PlayerID       string         `db:"player_id"`
	Kind           string         `db:"kind"`
	Amount         int64          `db:"amount"`
	Status         string         `db:"status"`
	Level          int            `db:"level"`
	Description    string         `db:"description"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      int64          `db:"created_at"`
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:             r.ID,
		PlayerID:       r.PlayerID,
		Kind:           domain.TransactionKind(r.Kind),
		Amount:         r.Amount,
		Status:         domain.TransactionStatus(r.Status),
		Level:          r.Level,
		Description:    r.Description,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      fromMillis(r.CreatedAt),
	}
}

// InsertTransaction appends a ledger record. A reused idempotency key yields domain.ErrDuplicate.
func (q *Queries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	if t.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = domain.StatusCompleted
	}

	var key sql.NullString
	if t.IdempotencyKey != "" {
		key = sql.NullString{String: t.IdempotencyKey, Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `INSERT INTO transactions
		(id, player_id, kind, amount, status, level, description, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PlayerID, string(t.Kind), t.Amount, string(t.Status), t.Level, t.Description, key, toMillis(t.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s", domain.ErrDuplicate, t.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// PostTransaction moves the balance and records the matching COMPLETED transaction, so the
// balance always equals the sum of completed amounts.
func (q *Queries) PostTransaction(ctx context.Context, t *domain.Transaction) error {
	t.Status = domain.StatusCompleted
	if err := q.AdjustBalance(ctx, t.PlayerID, t.Amount, t.CreatedAt); err != nil {
		return err
	}
	return q.InsertTransaction(ctx, t)
}

func (q *Queries) SumCompleted(ctx context.Context, playerID string) (int64, error) {
	var sum int64
	err := q.get(ctx, &sum, `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE player_id = ? AND status = 'COMPLETED'`, playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions for %s: %w", playerID, err)
	}
	return sum, nil
}

func (q *Queries) SumCompletedByKinds(ctx context.Context, playerID string, kinds ...domain.TransactionKind) (int64, error) {
	if len(kinds) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := []any{playerID}
	for _, k := range kinds {
		args = append(args, string(k))
	}

	var sum int64
	err := q.get(ctx, &sum, `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE player_id = ? AND status = 'COMPLETED' AND kind IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions for %s: %w", playerID, err)
	}
	return sum, nil
}

func (q *Queries) ListTransactions(ctx context.Context, playerID string, limit int) ([]domain.Transaction, error) {
	var rows []transactionRow
	err := q.selectAll(ctx, &rows, `SELECT id, player_id, kind, amount, status, level, description, idempotency_key, created_at
		FROM transactions WHERE player_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", playerID, err)
	}
	result := make([]domain.Transaction, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result, nil
}

func (q *Queries) GetTransactionByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	var row transactionRow
	err := q.get(ctx, &row, `SELECT id, player_id, kind, amount, status, level, description, idempotency_key, created_at
		FROM transactions WHERE idempotency_key = ?`, key)
	if isNoRows(err) {
		return nil, fmt.Errorf("transaction %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", key, err)
	}
	t := row.toDomain()
	return &t, nil
}
