package service

import (
	"context"
	"errors"
	"fmt"

	"mining-economy/internal/catalog"
	"mining-economy/internal/clock"
	"mining-economy/internal/constants"
	"mining-economy/internal/domain"
	"mining-economy/internal/notify"
	"mining-economy/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EconomyService composes the engines into the operations exposed over the API.
type EconomyService struct {
	store      Store
	catalog    *catalog.Catalog
	clock      clock.Clock
	commission *CommissionService
	equipment  *EquipmentService
	crafting   *CraftingService
	market     *MarketService
	sink       notify.Sink
	logger     zerolog.Logger
}

func NewEconomyService(
	store Store,
	cat *catalog.Catalog,
	clk clock.Clock,
	commission *CommissionService,
	equipment *EquipmentService,
	crafting *CraftingService,
	market *MarketService,
	sink notify.Sink,
	logger zerolog.Logger,
) *EconomyService {
	return &EconomyService{
		store:      store,
		catalog:    cat,
		clock:      clk,
		commission: commission,
		equipment:  equipment,
		crafting:   crafting,
		market:     market,
		sink:       sink,
		logger:     logger,
	}
}

type RegisterRequest struct {
	ID              string
	ReferrerID      string
	StartingBalance int64
}

func (s *EconomyService) RegisterPlayer(ctx context.Context, req RegisterRequest) (*domain.Player, error) {
	if req.StartingBalance < 0 {
		return nil, domain.Invalid("starting balance must not be negative")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.ReferrerID == req.ID {
		return nil, domain.Invalid("player cannot refer themselves")
	}

	var player *domain.Player
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		now := s.clock.Now()
		if req.ReferrerID != "" {
			if _, err := q.GetPlayer(ctx, req.ReferrerID); err != nil {
				return err
			}
		}
		if err := q.InsertPlayer(ctx, &domain.Player{ID: req.ID, ReferrerID: req.ReferrerID, CreatedAt: now}); err != nil {
			return err
		}
		if req.ReferrerID != "" {
			if err := q.IncrementInvited(ctx, req.ReferrerID, 1, now); err != nil {
				return err
			}
		}
		if req.StartingBalance > 0 {
			err := q.PostTransaction(ctx, &domain.Transaction{
				PlayerID:    req.ID,
				Kind:        domain.KindGrant,
				Amount:      req.StartingBalance,
				Description: "starting balance",
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
		}
		p, err := q.GetPlayer(ctx, req.ID)
		player = p
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("player_id", player.ID).Str("referrer_id", player.ReferrerID).Msg("player registered")
	if player.ReferrerID != "" {
		s.notify(ctx, player.ReferrerID, domain.SeverityInfo, "%s joined with your invite", player.ID)
	}
	return player, nil
}

// Grant credits an operator grant. It does not pay commission.
func (s *EconomyService) Grant(ctx context.Context, playerID string, amount int64, note string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, domain.Invalid("grant amount must be positive, got %d", amount)
	}
	if note == "" {
		note = "grant"
	}
	tx := &domain.Transaction{PlayerID: playerID, Kind: domain.KindGrant, Amount: amount, Description: note}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		tx.CreatedAt = s.clock.Now()
		return q.PostTransaction(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type BuyResult struct {
	Transaction domain.Transaction `json:"transaction"`
	Minted      *Minted            `json:"minted"`
	Commission  *CommissionResult  `json:"commission"`
}

// Buy debits the shop price, delivers the items and then pays purchase commission up the chain.
func (s *EconomyService) Buy(ctx context.Context, playerID, itemTypeID string, quantity int64) (*BuyResult, error) {
	if quantity <= 0 || quantity > constants.MaxPurchaseQuantity {
		return nil, domain.Invalid("quantity must be between 1 and %d, got %d", constants.MaxPurchaseQuantity, quantity)
	}
	it, ok := s.catalog.Item(itemTypeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownItemType, itemTypeID)
	}
	if it.ShopPrice() <= 0 {
		return nil, domain.Invalid("%s is not sold in the shop", itemTypeID)
	}
	total := it.ShopPrice() * quantity

	result := &BuyResult{}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		now := s.clock.Now()
		result.Transaction = domain.Transaction{
			PlayerID:    playerID,
			Kind:        domain.KindPurchase,
			Amount:      -total,
			Description: fmt.Sprintf("buy %d x %s", quantity, itemTypeID),
			CreatedAt:   now,
		}
		if err := q.PostTransaction(ctx, &result.Transaction); err != nil {
			return err
		}
		minted, err := mint(ctx, q, playerID, it, quantity, now)
		result.Minted = minted
		return err
	})
	if err != nil {
		return nil, err
	}

	result.Commission = s.payCommission(ctx, playerID, total, domain.TriggerPurchase, result.Transaction.ID)
	s.notify(ctx, playerID, domain.SeveritySuccess, "bought %d x %s for %d", quantity, it.ItemName(), total)
	return result, nil
}

type YieldResult struct {
	Amount      int64               `json:"amount"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	Commission  *CommissionResult   `json:"commission"`
}

func (s *EconomyService) ClaimYield(ctx context.Context, playerID string) (*YieldResult, error) {
	tx, err := s.equipment.CollectYield(ctx, playerID)
	if err != nil {
		return nil, err
	}
	result := &YieldResult{Transaction: tx, Commission: &CommissionResult{}}
	if tx == nil {
		return result, nil
	}
	result.Amount = tx.Amount
	result.Commission = s.payCommission(ctx, playerID, tx.Amount, domain.TriggerYield, tx.ID)
	s.notify(ctx, playerID, domain.SeveritySuccess, "claimed %d yield", tx.Amount)
	return result, nil
}

// PayCommission exposes the commission engine directly for operator replays and tests.
func (s *EconomyService) PayCommission(ctx context.Context, t Trigger) (*CommissionResult, error) {
	result, err := s.commission.PayCommission(ctx, t)
	if result != nil {
		s.notifyCommission(ctx, result)
	}
	return result, err
}

func (s *EconomyService) Repair(ctx context.Context, playerID, itemID, kitTypeID string) (*domain.EquipmentItem, error) {
	item, err := s.equipment.Repair(ctx, playerID, itemID, kitTypeID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, playerID, domain.SeveritySuccess, "%s repaired to %d/%d", item.TypeID, item.CurrentDurability, item.MaxDurability)
	return item, nil
}

type UpgradeOutcome struct {
	*UpgradeResult
	Commission *CommissionResult `json:"commission,omitempty"`
}

func (s *EconomyService) Upgrade(ctx context.Context, playerID, itemID string, useInsurance bool) (*UpgradeOutcome, error) {
	result, err := s.equipment.Upgrade(ctx, playerID, itemID, useInsurance)
	if err != nil {
		return nil, err
	}
	out := &UpgradeOutcome{UpgradeResult: result}
	if result.YieldCredited > 0 {
		out.Commission = s.payCommission(ctx, playerID, result.YieldCredited, domain.TriggerYield, "upgrade:"+itemID)
	}

	switch result.Outcome {
	case OutcomeSuccess:
		s.notify(ctx, playerID, domain.SeveritySuccess, "upgrade succeeded: %s is now level %d", result.Item.TypeID, result.Item.Level)
	case OutcomeInsured:
		s.notify(ctx, playerID, domain.SeverityWarning, "upgrade failed, insurance kept %s at level %d", result.Item.TypeID, result.Item.Level)
	case OutcomeDestroyed:
		s.notify(ctx, playerID, domain.SeverityError, "upgrade failed and the item was destroyed")
	default:
		s.notify(ctx, playerID, domain.SeverityWarning, "upgrade %s: %s is level %d", result.Outcome, result.Item.TypeID, result.Item.Level)
	}
	return out, nil
}

type SalvageOutcome struct {
	*SalvageResult
	Commission *CommissionResult `json:"commission,omitempty"`
}

func (s *EconomyService) Salvage(ctx context.Context, playerID, itemID string) (*SalvageOutcome, error) {
	result, err := s.equipment.Salvage(ctx, playerID, itemID)
	if err != nil {
		return nil, err
	}
	out := &SalvageOutcome{SalvageResult: result}
	if result.YieldCredited > 0 {
		out.Commission = s.payCommission(ctx, playerID, result.YieldCredited, domain.TriggerYield, "salvage:"+itemID)
	}
	s.notify(ctx, playerID, domain.SeverityInfo, "salvaged for %d tier %d material", result.Amount, result.Tier)
	return out, nil
}

type CraftOutcome struct {
	*StartResult
	Commission *CommissionResult `json:"commission,omitempty"`
}

func (s *EconomyService) StartCraft(ctx context.Context, playerID, itemTypeID string) (*CraftOutcome, error) {
	result, err := s.crafting.StartCraft(ctx, playerID, itemTypeID)
	if err != nil {
		return nil, err
	}
	out := &CraftOutcome{StartResult: result}
	if result.YieldCredited > 0 {
		out.Commission = s.payCommission(ctx, playerID, result.YieldCredited, domain.TriggerYield, "craft:"+result.Job.ID)
	}
	s.notify(ctx, playerID, domain.SeverityInfo, "crafting %s", itemTypeID)
	return out, nil
}

func (s *EconomyService) ApplySkip(ctx context.Context, playerID, jobID, accelerantTypeID string) (*JobView, error) {
	return s.crafting.ApplySkip(ctx, playerID, jobID, accelerantTypeID)
}

func (s *EconomyService) ClaimCraft(ctx context.Context, playerID, jobID string) (*ClaimResult, error) {
	result, err := s.crafting.ClaimCraft(ctx, playerID, jobID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, playerID, domain.SeveritySuccess, "crafted %d x %s", result.Minted.Quantity, result.Minted.ItemTypeID)
	return result, nil
}

func (s *EconomyService) ListJobs(ctx context.Context, playerID string) ([]JobView, error) {
	return s.crafting.ListJobs(ctx, playerID)
}

type RefineResult struct {
	FromTier int   `json:"fromTier"`
	ToTier   int   `json:"toTier"`
	Consumed int64 `json:"consumed"`
	Produced int64 `json:"produced"`
	Fee      int64 `json:"fee"`
}

// RefineMaterial turns batches of tier n material into tier n+1 at the catalog ratio and fee.
func (s *EconomyService) RefineMaterial(ctx context.Context, playerID string, fromTier int, batches int64) (*RefineResult, error) {
	if batches <= 0 || batches > constants.MaxRefineBatches {
		return nil, domain.Invalid("batches must be between 1 and %d, got %d", constants.MaxRefineBatches, batches)
	}
	mt, ok := s.catalog.MaterialTier(fromTier)
	if !ok {
		return nil, domain.Invalid("unknown material tier %d", fromTier)
	}
	toTier, ok := s.catalog.NextTier(fromTier)
	if !ok || mt.RefineAmount <= 0 {
		return nil, domain.Invalid("tier %d cannot be refined", fromTier)
	}

	result := &RefineResult{
		FromTier: fromTier,
		ToTier:   toTier,
		Consumed: mt.RefineAmount * batches,
		Produced: batches,
		Fee:      mt.RefineFee * batches,
	}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		have, err := q.GetMaterial(ctx, playerID, fromTier)
		if err != nil {
			return err
		}
		if have < result.Consumed {
			return domain.Insufficient(fmt.Sprintf("tier %d material", fromTier), have, result.Consumed)
		}
		if err := q.AdjustMaterial(ctx, playerID, fromTier, -result.Consumed); err != nil {
			return err
		}
		if result.Fee > 0 {
			err := q.PostTransaction(ctx, &domain.Transaction{
				PlayerID:    playerID,
				Kind:        domain.KindRefineFee,
				Amount:      -result.Fee,
				Description: fmt.Sprintf("refine %d x tier %d", batches, fromTier),
				CreatedAt:   s.clock.Now(),
			})
			if err != nil {
				return err
			}
		}
		return q.AdjustMaterial(ctx, playerID, toTier, result.Produced)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type SaleResult struct {
	Tier        int                `json:"tier"`
	Quantity    int64              `json:"quantity"`
	Price       int64              `json:"price"`
	Transaction domain.Transaction `json:"transaction"`
}

// SellMaterial sells at the tier's current market price.
func (s *EconomyService) SellMaterial(ctx context.Context, playerID string, tier int, quantity int64) (*SaleResult, error) {
	if quantity <= 0 || quantity > constants.MaxSaleQuantity {
		return nil, domain.Invalid("quantity must be between 1 and %d, got %d", constants.MaxSaleQuantity, quantity)
	}
	price, err := s.market.Quote(tier)
	if err != nil {
		return nil, err
	}

	result := &SaleResult{Tier: tier, Quantity: quantity, Price: price}
	err = s.store.Atomic(ctx, func(q *repository.Queries) error {
		if err := q.AdjustMaterial(ctx, playerID, tier, -quantity); err != nil {
			return err
		}
		result.Transaction = domain.Transaction{
			PlayerID:    playerID,
			Kind:        domain.KindMarketSale,
			Amount:      price * quantity,
			Description: fmt.Sprintf("sell %d x tier %d at %d", quantity, tier, price),
			CreatedAt:   s.clock.Now(),
		}
		return q.PostTransaction(ctx, &result.Transaction)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type Snapshot struct {
	Player       *domain.Player         `json:"player"`
	Materials    domain.MaterialLedger  `json:"materials"`
	Stacks       domain.Stacks          `json:"stacks"`
	Equipment    []domain.EquipmentItem `json:"equipment"`
	Jobs         []JobView              `json:"jobs"`
	Transactions []domain.Transaction   `json:"transactions"`
}

func (s *EconomyService) Snapshot(ctx context.Context, playerID string) (*Snapshot, error) {
	q := s.store.Queries()
	player, err := q.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Player: player}
	if snap.Materials, err = q.ListMaterials(ctx, playerID); err != nil {
		return nil, err
	}
	if snap.Stacks, err = q.ListStacks(ctx, playerID); err != nil {
		return nil, err
	}
	if snap.Equipment, err = s.equipment.List(ctx, playerID); err != nil {
		return nil, err
	}
	if snap.Jobs, err = s.crafting.ListJobs(ctx, playerID); err != nil {
		return nil, err
	}
	if snap.Transactions, err = q.ListTransactions(ctx, playerID, constants.TransactionListLimit); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *EconomyService) Market() *MarketService {
	return s.market
}

// payCommission never fails the caller's already committed action.
func (s *EconomyService) payCommission(ctx context.Context, buyerID string, amount int64, kind domain.TriggerKind, sourceRef string) *CommissionResult {
	result, err := s.commission.PayCommission(ctx, Trigger{BuyerID: buyerID, Amount: amount, Kind: kind, SourceRef: sourceRef})
	if err != nil {
		s.logger.Error().Err(err).Str("buyer_id", buyerID).Str("source_ref", sourceRef).Msg("commission walk aborted")
		if result == nil {
			return &CommissionResult{}
		}
	}
	s.notifyCommission(ctx, result)
	return result
}

func (s *EconomyService) notifyCommission(ctx context.Context, result *CommissionResult) {
	for _, tx := range result.Posted {
		s.notify(ctx, tx.PlayerID, domain.SeveritySuccess, "earned %d referral commission (L%d)", tx.Amount, tx.Level)
	}
}

func (s *EconomyService) notify(ctx context.Context, userID string, severity domain.Severity, format string, args ...any) {
	if s.sink == nil {
		return
	}
	n := domain.Notification{UserID: userID, Message: fmt.Sprintf(format, args...), Severity: severity}
	if err := s.sink.Notify(ctx, n); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to notify")
	}
}
