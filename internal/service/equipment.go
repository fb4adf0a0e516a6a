package service

import (
	"context"
	"fmt"
	"time"

	"mining-economy/internal/catalog"
	"mining-economy/internal/clock"
	"mining-economy/internal/domain"
	"mining-economy/internal/entropy"
	"mining-economy/internal/repository"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
	OutcomeInsured    Outcome = "insured"
	OutcomeDowngraded Outcome = "downgraded"
	OutcomeReset      Outcome = "reset"
	OutcomeDestroyed  Outcome = "destroyed"
)

type UpgradeResult struct {
	Item    *domain.EquipmentItem `json:"item,omitempty"` // nil when destroyed
	Outcome Outcome               `json:"outcome"`
	Roll    float64               `json:"roll"`
	// YieldCredited is pending yield paid out because the item was destroyed.
	YieldCredited int64 `json:"yieldCredited"`
}

type SalvageResult struct {
	Tier          int   `json:"tier"`
	Amount        int64 `json:"amount"`
	YieldCredited int64 `json:"yieldCredited"`
}

type EquipmentService struct {
	store   Store
	catalog *catalog.Catalog
	rng     entropy.Source
	clock   clock.Clock
	logger  zerolog.Logger
}

func NewEquipmentService(store Store, cat *catalog.Catalog, rng entropy.Source, clk clock.Clock, logger zerolog.Logger) *EquipmentService {
	return &EquipmentService{store: store, catalog: cat, rng: rng, clock: clk, logger: logger}
}

// List returns the player's equipment with decay and yield recomputed to now. Nothing is written.
func (s *EquipmentService) List(ctx context.Context, playerID string) ([]domain.EquipmentItem, error) {
	q := s.store.Queries()
	if _, err := q.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	items, err := q.ListEquipment(ctx, playerID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for i := range items {
		items[i] = domain.Accrue(items[i], now)
	}
	return items, nil
}

func (s *EquipmentService) Repair(ctx context.Context, playerID, itemID, kitTypeID string) (*domain.EquipmentItem, error) {
	kit, ok := s.catalog.RepairKit(kitTypeID)
	if !ok {
		return nil, domain.Invalid("%s is not a repair kit", kitTypeID)
	}

	var repaired domain.EquipmentItem
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		item, err := q.GetOwnedEquipment(ctx, playerID, itemID)
		if err != nil {
			return err
		}
		if !kit.Applies(item.TypeID) {
			return fmt.Errorf("%w: %s cannot repair %s", domain.ErrKitNotApplicable, kitTypeID, item.TypeID)
		}

		if err := q.AdjustStack(ctx, playerID, kitTypeID, -1); err != nil {
			return err
		}
		now := s.clock.Now()
		if kit.Fee > 0 {
			err := q.PostTransaction(ctx, &domain.Transaction{
				PlayerID:    playerID,
				Kind:        domain.KindRepairFee,
				Amount:      -kit.Fee,
				Description: fmt.Sprintf("repair %s with %s", item.TypeID, kitTypeID),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
		}

		repaired = domain.Repaired(*item, kit.RepairValue, now)
		repaired.UpdatedAt = now
		return q.UpdateEquipment(ctx, &repaired)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", playerID).
		Str("item_id", itemID).
		Int("durability", repaired.CurrentDurability).
		Msg("equipment repaired")
	return &repaired, nil
}

// Upgrade rolls one upgrade attempt. Costs are paid whatever the outcome; insurance, when asked for
// and owned, is consumed only to block a level penalty.
func (s *EquipmentService) Upgrade(ctx context.Context, playerID, itemID string, useInsurance bool) (*UpgradeResult, error) {
	result := &UpgradeResult{}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		item, err := q.GetOwnedEquipment(ctx, playerID, itemID)
		if err != nil {
			return err
		}
		series, ok := s.catalog.Series(item.Series)
		if !ok {
			return fmt.Errorf("equipment %s has unknown series %s", item.ID, item.Series)
		}
		if item.Level >= s.catalog.Upgrade.MaxLevel {
			return fmt.Errorf("%w: %s is level %d", domain.ErrAlreadyMaxLevel, item.ID, item.Level)
		}
		step, ok := series.Step(item.Level)
		if !ok {
			return fmt.Errorf("%w: no upgrade step for level %d", domain.ErrAlreadyMaxLevel, item.Level)
		}

		if err := s.checkUpgradeCosts(ctx, q, playerID, step); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.payUpgradeCosts(ctx, q, playerID, item, step, now); err != nil {
			return err
		}

		updated := domain.Accrue(*item, now)
		updated.UpdatedAt = now

		result.Roll = s.rng.Float64()
		switch {
		case result.Roll < step.SuccessChance:
			updated.Level++
			result.Outcome = OutcomeSuccess
		case step.Risk == catalog.RiskNone:
			result.Outcome = OutcomeFailed
		default:
			insured, err := s.consumeInsurance(ctx, q, playerID, useInsurance)
			if err != nil {
				return err
			}
			switch {
			case insured:
				result.Outcome = OutcomeInsured
			case step.Risk == catalog.RiskDowngrade:
				updated.Level = max(0, updated.Level-1)
				result.Outcome = OutcomeDowngraded
			case step.Risk == catalog.RiskReset:
				updated.Level = 0
				result.Outcome = OutcomeReset
			}
		}

		if updated.Level == 0 && series.DestroyAtZero {
			credited, err := creditYield(ctx, q, &updated, now, "destroyed")
			if err != nil {
				return err
			}
			result.YieldCredited = credited
			result.Outcome = OutcomeDestroyed
			return q.DeleteEquipment(ctx, updated.ID)
		}

		if eq, ok := s.catalog.Equipment(updated.TypeID); ok {
			updated.DailyBonus = series.BonusAt(eq.DailyBonus, updated.Level)
		}
		result.Item = &updated
		return q.UpdateEquipment(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", playerID).
		Str("item_id", itemID).
		Str("outcome", string(result.Outcome)).
		Float64("roll", result.Roll).
		Msg("upgrade attempted")
	return result, nil
}

// checkUpgradeCosts reports the first shortfall before anything is debited.
func (s *EquipmentService) checkUpgradeCosts(ctx context.Context, q *repository.Queries, playerID string, step catalog.UpgradeStep) error {
	chips, err := q.GetStack(ctx, playerID, s.catalog.Upgrade.ChipItem)
	if err != nil {
		return err
	}
	if chips < step.ChipCost {
		return domain.Insufficient("chips", chips, step.ChipCost)
	}

	if step.MaterialAmount > 0 {
		have, err := q.GetMaterial(ctx, playerID, step.MaterialTier)
		if err != nil {
			return err
		}
		if have < step.MaterialAmount {
			return domain.Insufficient(fmt.Sprintf("tier %d material", step.MaterialTier), have, step.MaterialAmount)
		}
	}

	player, err := q.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if player.Balance < step.Fee {
		return domain.Insufficient("balance", player.Balance, step.Fee)
	}
	return nil
}

func (s *EquipmentService) payUpgradeCosts(ctx context.Context, q *repository.Queries, playerID string, item *domain.EquipmentItem, step catalog.UpgradeStep, now time.Time) error {
	if err := q.AdjustStack(ctx, playerID, s.catalog.Upgrade.ChipItem, -step.ChipCost); err != nil {
		return err
	}
	if err := q.AdjustMaterial(ctx, playerID, step.MaterialTier, -step.MaterialAmount); err != nil {
		return err
	}
	if step.Fee <= 0 {
		return nil
	}
	return q.PostTransaction(ctx, &domain.Transaction{
		PlayerID:    playerID,
		Kind:        domain.KindUpgradeFee,
		Amount:      -step.Fee,
		Description: fmt.Sprintf("upgrade %s from level %d", item.TypeID, item.Level),
		CreatedAt:   now,
	})
}

func (s *EquipmentService) consumeInsurance(ctx context.Context, q *repository.Queries, playerID string, requested bool) (bool, error) {
	insurance := s.catalog.Upgrade.InsuranceItem
	if !requested || insurance == "" {
		return false, nil
	}
	owned, err := q.GetStack(ctx, playerID, insurance)
	if err != nil {
		return false, err
	}
	if owned < 1 {
		return false, nil
	}
	return true, q.AdjustStack(ctx, playerID, insurance, -1)
}

// Salvage scraps an item for its series' salvage materials and pays out its pending yield.
func (s *EquipmentService) Salvage(ctx context.Context, playerID, itemID string) (*SalvageResult, error) {
	result := &SalvageResult{}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		item, err := q.GetOwnedEquipment(ctx, playerID, itemID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		accrued := domain.Accrue(*item, now)

		credited, err := creditYield(ctx, q, &accrued, now, "salvaged")
		if err != nil {
			return err
		}
		result.YieldCredited = credited

		if series, ok := s.catalog.Series(item.Series); ok && series.Salvage.Amount > 0 {
			result.Tier = series.Salvage.Tier
			result.Amount = series.Salvage.Amount
			if err := q.AdjustMaterial(ctx, playerID, result.Tier, result.Amount); err != nil {
				return err
			}
		}
		return q.DeleteEquipment(ctx, item.ID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CollectYield accrues every item the player owns and credits the banked yield as one transaction.
func (s *EquipmentService) CollectYield(ctx context.Context, playerID string) (*domain.Transaction, error) {
	var tx *domain.Transaction
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		if _, err := q.GetPlayer(ctx, playerID); err != nil {
			return err
		}
		items, err := q.ListEquipment(ctx, playerID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		var total int64
		for _, item := range items {
			accrued := domain.Accrue(item, now)
			total += accrued.PendingYield
			accrued.PendingYield = 0
			accrued.UpdatedAt = now
			if err := q.UpdateEquipment(ctx, &accrued); err != nil {
				return err
			}
		}
		if total <= 0 {
			return nil
		}

		tx = &domain.Transaction{
			PlayerID:    playerID,
			Kind:        domain.KindYield,
			Amount:      total,
			Description: fmt.Sprintf("yield from %d items", len(items)),
			CreatedAt:   now,
		}
		return q.PostTransaction(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}
