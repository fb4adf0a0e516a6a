package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"mining-economy/internal/catalog"
	"mining-economy/internal/clock"
	"mining-economy/internal/domain"
	"mining-economy/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Trigger is a qualifying player action that pays commission up the referrer chain.
type Trigger struct {
	BuyerID string
	Amount  int64
	Kind    domain.TriggerKind
	// SourceRef identifies the triggering action and makes every level's payout idempotent.
	SourceRef string
}

// Failure is a level whose payout could not be written. It has been queued for reconciliation.
type Failure struct {
	Level      int    `json:"level"`
	AncestorID string `json:"ancestorId"`
	Amount     int64  `json:"amount"`
	Err        error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("commission L%d to %s (%d): %v", f.Level, f.AncestorID, f.Amount, f.Err)
}

type CommissionResult struct {
	Posted   []domain.Transaction `json:"posted"`
	Failures []Failure            `json:"failures,omitempty"`
}

type CommissionService struct {
	store   Store
	catalog *catalog.Catalog
	clock   clock.Clock
	logger  zerolog.Logger
}

func NewCommissionService(store Store, cat *catalog.Catalog, clk clock.Clock, logger zerolog.Logger) *CommissionService {
	return &CommissionService{store: store, catalog: cat, clock: clk, logger: logger}
}

// PayCommission walks the buyer's referrer chain and posts one commission per level, each in its
// own atomic step. A failed level is reported and queued; it never undoes the trigger or the other
// levels.
func (s *CommissionService) PayCommission(ctx context.Context, t Trigger) (*CommissionResult, error) {
	kind, ok := t.Kind.CommissionKind()
	if !ok || !s.catalog.Commission.Supports(t.Kind) {
		return nil, domain.Invalid("unknown commission trigger %q", t.Kind)
	}

	result := &CommissionResult{}
	if t.Amount <= 0 {
		return result, nil
	}
	if t.Amount > maxTriggerAmount {
		return nil, domain.Invalid("commission trigger amount %d exceeds %d", t.Amount, int64(maxTriggerAmount))
	}
	if t.SourceRef == "" {
		t.SourceRef = uuid.NewString()
	}

	buyer, err := s.store.Queries().GetPlayer(ctx, t.BuyerID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{buyer.ID: true}
	ancestorID := buyer.ReferrerID

	for level := 1; level <= s.catalog.Commission.MaxDepth && ancestorID != ""; level++ {
		if visited[ancestorID] {
			s.logger.Warn().
				Str("buyer_id", buyer.ID).
				Str("ancestor_id", ancestorID).
				Int("level", level).
				Msg("referral cycle detected, stopping commission walk")
			break
		}
		visited[ancestorID] = true

		amount := t.Amount * s.catalog.Commission.BasisPoints(t.Kind, level) / 10000

		ancestor, err := s.store.Queries().GetPlayer(ctx, ancestorID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).
				Str("buyer_id", buyer.ID).
				Str("ancestor_id", ancestorID).
				Int("level", level).
				Msg("referrer unresolvable, stopping commission walk")
			break
		}
		if err != nil {
			// the rest of the chain is unknown; queue this level and surface the error
			s.logger.Error().Err(err).
				Str("buyer_id", buyer.ID).
				Str("ancestor_id", ancestorID).
				Int("level", level).
				Msg("failed to resolve referrer")
			if amount > 0 {
				f := Failure{Level: level, AncestorID: ancestorID, Amount: amount, Err: err}
				result.Failures = append(result.Failures, f)
				s.queue(ctx, buyer.ID, kind, t.SourceRef, f)
			}
			return result, fmt.Errorf("failed to resolve referrer %s at level %d: %w", ancestorID, level, err)
		}

		if amount > 0 {
			tx, err := s.post(ctx, ancestor.ID, buyer.ID, kind, level, amount, t.SourceRef)
			switch {
			case errors.Is(err, domain.ErrDuplicate):
				s.logger.Debug().Str("source_ref", t.SourceRef).Int("level", level).Msg("commission already posted")
			case err != nil:
				f := Failure{Level: level, AncestorID: ancestor.ID, Amount: amount, Err: err}
				result.Failures = append(result.Failures, f)
				s.logger.Warn().Err(err).
					Str("buyer_id", buyer.ID).
					Str("ancestor_id", ancestor.ID).
					Int("level", level).
					Int64("amount", amount).
					Msg("failed to post commission")
				s.queue(ctx, buyer.ID, kind, t.SourceRef, f)
			default:
				result.Posted = append(result.Posted, *tx)
			}
		}

		ancestorID = ancestor.ReferrerID
	}

	return result, nil
}

func (s *CommissionService) post(ctx context.Context, ancestorID, buyerID string, kind domain.TransactionKind, level int, amount int64, sourceRef string) (*domain.Transaction, error) {
	now := s.clock.Now()
	tx := &domain.Transaction{
		PlayerID:       ancestorID,
		Kind:           kind,
		Amount:         amount,
		Level:          level,
		Description:    fmt.Sprintf("L%d %s from %s", level, kind, buyerID),
		IdempotencyKey: idempotencyKey(sourceRef, level),
		CreatedAt:      now,
	}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		if err := q.PostTransaction(ctx, tx); err != nil {
			return err
		}
		return q.IncrementEarned(ctx, ancestorID, amount, now)
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *CommissionService) queue(ctx context.Context, buyerID string, kind domain.TransactionKind, sourceRef string, f Failure) {
	record := &domain.CommissionFailure{
		BuyerID:    buyerID,
		AncestorID: f.AncestorID,
		Level:      f.Level,
		Kind:       kind,
		Amount:     f.Amount,
		SourceRef:  sourceRef,
		Error:      f.Err.Error(),
		CreatedAt:  s.clock.Now(),
	}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		return q.InsertCommissionFailure(ctx, record)
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("source_ref", sourceRef).
			Int("level", f.Level).
			Msg("failed to queue commission failure")
	}
}

// Replay posts a queued payout. A payout that already landed only resolves the queue entry.
func (s *CommissionService) Replay(ctx context.Context, f domain.CommissionFailure) (bool, error) {
	if !f.Kind.IsCommission() {
		return false, domain.Invalid("queued payout %s has non-commission kind %q", f.ID, f.Kind)
	}

	posted := false
	_, err := s.store.Queries().GetTransactionByKey(ctx, idempotencyKey(f.SourceRef, f.Level))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		_, err = s.post(ctx, f.AncestorID, f.BuyerID, f.Kind, f.Level, f.Amount, f.SourceRef)
		posted = err == nil
		if err != nil && !errors.Is(err, domain.ErrDuplicate) {
			return false, fmt.Errorf("failed to replay commission %s: %w", f.ID, err)
		}
	case err != nil:
		return false, err
	}

	err = s.store.Atomic(ctx, func(q *repository.Queries) error {
		return q.ResolveCommissionFailure(ctx, f.ID, s.clock.Now())
	})
	if err != nil {
		return posted, err
	}
	return posted, nil
}

// maxTriggerAmount keeps amount * basis points within int64.
const maxTriggerAmount = math.MaxInt64 / 10000

func idempotencyKey(sourceRef string, level int) string {
	return fmt.Sprintf("%s:L%d", sourceRef, level)
}
