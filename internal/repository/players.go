package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mining-economy/internal/domain"
)

type playerRow struct {
	ID           string         `db:"id"`
	ReferrerID   sql.NullString `db:"referrer_id"`
	Balance      int64          `db:"balance"`
	TotalInvited int            `db:"total_invited"`
	TotalEarned  int64          `db:"total_earned"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

func (r playerRow) toDomain() *domain.Player {
	return &domain.Player{
		ID:           r.ID,
		ReferrerID:   r.ReferrerID.String,
		Balance:      r.Balance,
		TotalInvited: r.TotalInvited,
		TotalEarned:  r.TotalEarned,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

func (q *Queries) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	var row playerRow
	err := q.get(ctx, &row, `SELECT id, referrer_id, balance, total_invited, total_earned, created_at, updated_at
		FROM players WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// InsertPlayer stores a new player with a zero balance. Starting funds go through PostTransaction.
func (q *Queries) InsertPlayer(ctx context.Context, p *domain.Player) error {
	var referrer sql.NullString
	if p.ReferrerID != "" {
		referrer = sql.NullString{String: p.ReferrerID, Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO players (id, referrer_id, balance, total_invited, total_earned, created_at, updated_at)
		VALUES (?, ?, 0, 0, 0, ?, ?)`,
		p.ID, referrer, toMillis(p.CreatedAt), toMillis(p.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: player %s", domain.ErrDuplicate, p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert player %s: %w", p.ID, err)
	}
	return nil
}

// AdjustBalance applies delta and refuses to take the balance below zero.
func (q *Queries) AdjustBalance(ctx context.Context, playerID string, delta int64, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE players SET balance = balance + ?, updated_at = ?
		WHERE id = ? AND balance + ? >= 0`,
		delta, toMillis(at), playerID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust balance for %s: %w", playerID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		p, err := q.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		return domain.Insufficient("balance", p.Balance, -delta)
	}
	return nil
}

func (q *Queries) IncrementInvited(ctx context.Context, playerID string, n int, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE players SET total_invited = total_invited + ?, updated_at = ? WHERE id = ?`,
		n, toMillis(at), playerID)
	if err != nil {
		return fmt.Errorf("failed to increment invited for %s: %w", playerID, err)
	}
	return nil
}

func (q *Queries) IncrementEarned(ctx context.Context, playerID string, amount int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE players SET total_earned = total_earned + ?, updated_at = ? WHERE id = ?`,
		amount, toMillis(at), playerID)
	if err != nil {
		return fmt.Errorf("failed to increment earned for %s: %w", playerID, err)
	}
	return nil
}

func (q *Queries) SetReferralStats(ctx context.Context, playerID string, invited int, earned int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE players SET total_invited = ?, total_earned = ?, updated_at = ? WHERE id = ?`,
		invited, earned, toMillis(at), playerID)
	if err != nil {
		return fmt.Errorf("failed to set referral stats for %s: %w", playerID, err)
	}
	return nil
}

func (q *Queries) CountReferrals(ctx context.Context, playerID string) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM players WHERE referrer_id = ?`, playerID); err != nil {
		return 0, fmt.Errorf("failed to count referrals for %s: %w", playerID, err)
	}
	return n, nil
}

// ListPlayers pages through players ordered by id, starting after the given id.
func (q *Queries) ListPlayers(ctx context.Context, after string, limit int) ([]domain.Player, error) {
	var rows []playerRow
	err := q.selectAll(ctx, &rows, `SELECT id, referrer_id, balance, total_invited, total_earned, created_at, updated_at
		FROM players WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	result := make([]domain.Player, len(rows))
	for i, r := range rows {
		result[i] = *r.toDomain()
	}
	return result, nil
}
