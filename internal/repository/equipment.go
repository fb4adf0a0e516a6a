package repository

import (
	"context"
	"fmt"

	"mining-economy/internal/domain"
)

type equipmentRow struct {
	ID                string `db:"id"`
	OwnerID           string `db:"owner_id"`
	TypeID            string `db:"type_id"`
	Series            string `db:"series"`
	Rarity            string `db:"rarity"`
	Level             int    `db:"level"`
	CurrentDurability int    `db:"current_durability"`
	MaxDurability     int    `db:"max_durability"`
	DailyBonus        int64  `db:"daily_bonus"`
	DecayPerHour      int    `db:"decay_per_hour"`
	PendingYield      int64  `db:"pending_yield"`
	YieldCarry        int64  `db:"yield_carry"`
	DecayedAt         int64  `db:"decayed_at"`
	YieldedAt         int64  `db:"yielded_at"`
	CreatedAt         int64  `db:"created_at"`
	UpdatedAt         int64  `db:"updated_at"`
}

const equipmentColumns = `id, owner_id, type_id, series, rarity, level, current_durability, max_durability,
	daily_bonus, decay_per_hour, pending_yield, yield_carry, decayed_at, yielded_at, created_at, updated_at`

func (r equipmentRow) toDomain() domain.EquipmentItem {
	return domain.EquipmentItem{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		TypeID:            r.TypeID,
		Series:            r.Series,
		Rarity:            r.Rarity,
		Level:             r.Level,
		CurrentDurability: r.CurrentDurability,
		MaxDurability:     r.MaxDurability,
		DailyBonus:        r.DailyBonus,
		DecayPerHour:      r.DecayPerHour,
		PendingYield:      r.PendingYield,
		YieldCarry:        r.YieldCarry,
		DecayedAt:         fromMillis(r.DecayedAt),
		YieldedAt:         fromMillis(r.YieldedAt),
		CreatedAt:         fromMillis(r.CreatedAt),
		UpdatedAt:         fromMillis(r.UpdatedAt),
	}
}

func (q *Queries) GetEquipment(ctx context.Context, id string) (*domain.EquipmentItem, error) {
	var row equipmentRow
	err := q.get(ctx, &row, `SELECT `+equipmentColumns+` FROM equipment WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment %s: %w", id, err)
	}
	item := row.toDomain()
	return &item, nil
}

// GetOwnedEquipment hides items owned by someone else behind ErrItemNotFound.
func (q *Queries) GetOwnedEquipment(ctx context.Context, ownerID, id string) (*domain.EquipmentItem, error) {
	item, err := q.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	return item, nil
}

func (q *Queries) InsertEquipment(ctx context.Context, item *domain.EquipmentItem) error {
	if item.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		item.ID = id
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO equipment (`+equipmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.TypeID, item.Series, item.Rarity, item.Level,
		item.CurrentDurability, item.MaxDurability, item.DailyBonus, item.DecayPerHour, item.PendingYield, item.YieldCarry,
		toMillis(item.DecayedAt), toMillis(item.YieldedAt), toMillis(item.CreatedAt), toMillis(item.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert equipment: %w", err)
	}
	return nil
}

func (q *Queries) UpdateEquipment(ctx context.Context, item *domain.EquipmentItem) error {
	res, err := q.db.ExecContext(ctx, `UPDATE equipment SET level = ?, current_durability = ?, daily_bonus = ?,
		pending_yield = ?, yield_carry = ?, decayed_at = ?, yielded_at = ?, updated_at = ?
		WHERE id = ?`,
		item.Level, item.CurrentDurability, item.DailyBonus, item.PendingYield, item.YieldCarry,
		toMillis(item.DecayedAt), toMillis(item.YieldedAt), toMillis(item.UpdatedAt), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update equipment %s: %w", item.ID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, item.ID)
	}
	return nil
}

func (q *Queries) DeleteEquipment(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM equipment WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete equipment %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	return nil
}

func (q *Queries) ListEquipment(ctx context.Context, ownerID string) ([]domain.EquipmentItem, error) {
	var rows []equipmentRow
	err := q.selectAll(ctx, &rows, `SELECT `+equipmentColumns+` FROM equipment WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment for %s: %w", ownerID, err)
	}
	result := make([]domain.EquipmentItem, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result, nil
}

// FindEquipmentByType picks the lowest level, oldest item of a type, or nil when none is owned.
func (q *Queries) FindEquipmentByType(ctx context.Context, ownerID, typeID string) (*domain.EquipmentItem, error) {
	var row equipmentRow
	err := q.get(ctx, &row, `SELECT `+equipmentColumns+` FROM equipment
		WHERE owner_id = ? AND type_id = ? ORDER BY level, created_at, id LIMIT 1`, ownerID, typeID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find equipment %s for %s: %w", typeID, ownerID, err)
	}
	item := row.toDomain()
	return &item, nil
}
