package service

import (
	"context"
	"fmt"
	"time"

	"mining-economy/internal/catalog"
	"mining-economy/internal/domain"
	"mining-economy/internal/repository"
)

// Store is the persistence the engines run against. *repository.Store satisfies it.
type Store interface {
	Atomic(ctx context.Context, fn func(q *repository.Queries) error) error
	Queries() *repository.Queries
}

// mintEquipment creates a fresh item at level 1 and full durability.
func mintEquipment(ctx context.Context, q *repository.Queries, ownerID string, eq *catalog.Equipment, now time.Time) (*domain.EquipmentItem, error) {
	item := &domain.EquipmentItem{
		OwnerID:           ownerID,
		TypeID:            eq.ItemID(),
		Series:            eq.Series,
		Rarity:            eq.Rarity,
		Level:             1,
		CurrentDurability: eq.MaxDurability,
		MaxDurability:     eq.MaxDurability,
		DailyBonus:        eq.DailyBonus,
		DecayPerHour:      eq.DecayPerHour,
		DecayedAt:         now,
		YieldedAt:         now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := q.InsertEquipment(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Minted describes what a purchase or a craft claim put into a player's inventory.
type Minted struct {
	ItemTypeID string                 `json:"itemTypeId"`
	Category   catalog.Category       `json:"category"`
	Quantity   int64                  `json:"quantity"`
	Equipment  []domain.EquipmentItem `json:"equipment,omitempty"`
}

// mint credits qty units of it to ownerID according to the item's category.
func mint(ctx context.Context, q *repository.Queries, ownerID string, it catalog.Item, qty int64, now time.Time) (*Minted, error) {
	out := &Minted{ItemTypeID: it.ItemID(), Category: it.Category(), Quantity: qty}

	switch v := it.(type) {
	case *catalog.Equipment:
		for range qty {
			item, err := mintEquipment(ctx, q, ownerID, v, now)
			if err != nil {
				return nil, err
			}
			out.Equipment = append(out.Equipment, *item)
		}
	case *catalog.Consumable, *catalog.RepairKit:
		if err := q.AdjustStack(ctx, ownerID, it.ItemID(), qty); err != nil {
			return nil, err
		}
	case *catalog.Material:
		if err := q.AdjustMaterial(ctx, ownerID, v.Tier, qty); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownItemType, it.ItemID())
	}
	return out, nil
}

// creditYield posts banked yield as a yield transaction and returns the amount credited.
func creditYield(ctx context.Context, q *repository.Queries, item *domain.EquipmentItem, now time.Time, reason string) (int64, error) {
	amount := item.PendingYield
	if amount <= 0 {
		return 0, nil
	}
	err := q.PostTransaction(ctx, &domain.Transaction{
		PlayerID:    item.OwnerID,
		Kind:        domain.KindYield,
		Amount:      amount,
		Description: fmt.Sprintf("yield from %s (%s)", item.TypeID, reason),
		CreatedAt:   now,
	})
	if err != nil {
		return 0, err
	}
	item.PendingYield = 0
	return amount, nil
}
