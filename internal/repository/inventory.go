package repository

import (
	"context"
	"fmt"

	"mining-economy/internal/domain"
)

func (q *Queries) GetStack(ctx context.Context, playerID, itemTypeID string) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT quantity FROM player_items WHERE player_id = ? AND item_type_id = ?`, playerID, itemTypeID)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s stack for %s: %w", itemTypeID, playerID, err)
	}
	return n, nil
}

// AdjustStack adds delta to a consumable stack. Removing more than is owned fails with an
// InsufficientError naming the item type.
func (q *Queries) AdjustStack(ctx context.Context, playerID, itemTypeID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if delta > 0 {
		_, err := q.db.ExecContext(ctx, `INSERT INTO player_items (player_id, item_type_id, quantity) VALUES (?, ?, ?)
			ON CONFLICT (player_id, item_type_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
			playerID, itemTypeID, delta)
		if err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", itemTypeID, playerID, err)
		}
		return nil
	}

	res, err := q.db.ExecContext(ctx, `UPDATE player_items SET quantity = quantity + ?
		WHERE player_id = ? AND item_type_id = ? AND quantity + ? >= 0`,
		delta, playerID, itemTypeID, delta)
	if err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", itemTypeID, playerID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		have, err := q.GetStack(ctx, playerID, itemTypeID)
		if err != nil {
			return err
		}
		return domain.Insufficient(itemTypeID, have, -delta)
	}
	return nil
}

func (q *Queries) ListStacks(ctx context.Context, playerID string) (domain.Stacks, error) {
	var rows []struct {
		ItemTypeID string `db:"item_type_id"`
		Quantity   int64  `db:"quantity"`
	}
	err := q.selectAll(ctx, &rows, `SELECT item_type_id, quantity FROM player_items
		WHERE player_id = ? AND quantity > 0 ORDER BY item_type_id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stacks for %s: %w", playerID, err)
	}
	stacks := make(domain.Stacks, len(rows))
	for _, r := range rows {
		stacks[r.ItemTypeID] = r.Quantity
	}
	return stacks, nil
}

func (q *Queries) GetMaterial(ctx context.Context, playerID string, tier int) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT quantity FROM materials WHERE player_id = ? AND tier = ?`, playerID, tier)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get tier %d material for %s: %w", tier, playerID, err)
	}
	return n, nil
}

// AdjustMaterial adds delta units of tier. Going below zero fails with an InsufficientError.
func (q *Queries) AdjustMaterial(ctx context.Context, playerID string, tier int, delta int64) error {
	if delta == 0 {
		return nil
	}
	if delta > 0 {
		_, err := q.db.ExecContext(ctx, `INSERT INTO materials (player_id, tier, quantity) VALUES (?, ?, ?)
			ON CONFLICT (player_id, tier) DO UPDATE SET quantity = quantity + excluded.quantity`,
			playerID, tier, delta)
		if err != nil {
			return fmt.Errorf("failed to add tier %d material to %s: %w", tier, playerID, err)
		}
		return nil
	}

	res, err := q.db.ExecContext(ctx, `UPDATE materials SET quantity = quantity + ?
		WHERE player_id = ? AND tier = ? AND quantity + ? >= 0`,
		delta, playerID, tier, delta)
	if err != nil {
		return fmt.Errorf("failed to remove tier %d material from %s: %w", tier, playerID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		have, err := q.GetMaterial(ctx, playerID, tier)
		if err != nil {
			return err
		}
		return domain.Insufficient(fmt.Sprintf("tier %d material", tier), have, -delta)
	}
	return nil
}

func (q *Queries) ListMaterials(ctx context.Context, playerID string) (domain.MaterialLedger, error) {
	var rows []struct {
		Tier     int   `db:"tier"`
		Quantity int64 `db:"quantity"`
	}
	err := q.selectAll(ctx, &rows, `SELECT tier, quantity FROM materials
		WHERE player_id = ? AND quantity > 0 ORDER BY tier`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials for %s: %w", playerID, err)
	}
	ledger := make(domain.MaterialLedger, len(rows))
	for _, r := range rows {
		ledger[r.Tier] = r.Quantity
	}
	return ledger, nil
}
