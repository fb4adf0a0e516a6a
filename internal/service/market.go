package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"mining-economy/internal/catalog"
	"mining-economy/internal/clock"
	"mining-economy/internal/constants"
	"mining-economy/internal/domain"
	"mining-economy/internal/entropy"
	"mining-economy/internal/notify"
	"mining-economy/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type tierState struct {
	mu    sync.Mutex
	state domain.MarketTierState
}

// MarketService runs a bounded random walk per material tier. Ticks on the same tier are
// serialized by the tier's mutex; different tiers tick in parallel.
type MarketService struct {
	store       Store
	catalog     *catalog.Catalog
	rng         entropy.Source
	clock       clock.Clock
	broadcaster notify.Broadcaster
	logger      zerolog.Logger

	tiers map[int]*tierState
	order []int
}

func NewMarketService(store Store, cat *catalog.Catalog, rng entropy.Source, clk clock.Clock, broadcaster notify.Broadcaster, logger zerolog.Logger) *MarketService {
	s := &MarketService{
		store:       store,
		catalog:     cat,
		rng:         rng,
		clock:       clk,
		broadcaster: broadcaster,
		logger:      logger,
		tiers:       make(map[int]*tierState, len(cat.Market.Tiers)),
	}
	now := clk.Now()
	for _, t := range cat.Market.Tiers {
		s.tiers[t.Tier] = &tierState{state: domain.MarketTierState{
			Tier:          t.Tier,
			BasePrice:     t.BasePrice,
			CurrentPrice:  t.BasePrice,
			PreviousPrice: t.BasePrice,
			Trend:         domain.TrendFlat,
			History:       []int64{t.BasePrice},
			Closed:        t.Closed,
			UpdatedAt:     now,
		}}
		s.order = append(s.order, t.Tier)
	}
	slices.Sort(s.order)
	return s
}

// Load restores persisted prices. Tiers never persisted are written with their base price.
func (s *MarketService) Load(ctx context.Context) error {
	persisted, err := s.store.Queries().ListMarketStates(ctx)
	if err != nil {
		return err
	}
	for _, p := range persisted {
		ts, ok := s.tiers[p.Tier]
		if !ok {
			continue
		}
		ts.mu.Lock()
		// a base price change in the catalog re-clamps the stored price into the new band
		lo, hi := s.band(ts.state.BasePrice)
		p.CurrentPrice = min(max(p.CurrentPrice, lo), hi)
		p.BasePrice = ts.state.BasePrice
		p.Closed = ts.state.Closed
		p.History = s.trim(p.History)
		ts.state = p
		ts.mu.Unlock()
	}

	return s.store.Atomic(ctx, func(q *repository.Queries) error {
		for _, tier := range s.order {
			if err := q.UpsertMarketState(ctx, s.snapshot(tier)); err != nil {
				return err
			}
		}
		return nil
	})
}

// band is the inclusive price range allowed around base.
func (s *MarketService) band(base int64) (int64, int64) {
	pct := s.catalog.Market.MaxBandPercent / 100
	lo := int64(math.Ceil(float64(base) * (1 - pct)))
	hi := int64(math.Floor(float64(base) * (1 + pct)))
	return max(lo, 1), max(hi, 1)
}

func (s *MarketService) trim(history []int64) []int64 {
	if n := s.catalog.Market.HistoryLength; len(history) > n {
		history = history[len(history)-n:]
	}
	return history
}

// Tick moves one tier's price by a uniform step of at most MaxStepPercent, clamped to the band.
func (s *MarketService) Tick(ctx context.Context, tier int) (domain.MarketTierState, error) {
	ts, ok := s.tiers[tier]
	if !ok {
		return domain.MarketTierState{}, fmt.Errorf("%w: market tier %d", domain.ErrNotFound, tier)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.state.Closed {
		return domain.MarketTierState{}, fmt.Errorf("%w: tier %d", domain.ErrTierClosed, tier)
	}

	next := ts.state
	step := s.catalog.Market.MaxStepPercent / 100
	delta := entropy.Range(s.rng, -step, step) * float64(next.CurrentPrice)
	price := int64(math.Round(float64(next.CurrentPrice) + delta))
	lo, hi := s.band(next.BasePrice)
	price = min(max(price, lo), hi)

	next.PreviousPrice = next.CurrentPrice
	next.CurrentPrice = price
	switch {
	case price > next.PreviousPrice:
		next.Trend = domain.TrendUp
	case price < next.PreviousPrice:
		next.Trend = domain.TrendDown
	default:
		next.Trend = domain.TrendFlat
	}
	next.History = s.trim(append(slices.Clone(next.History), price))
	next.UpdatedAt = s.clock.Now()

	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		return q.UpsertMarketState(ctx, next)
	})
	if err != nil {
		return domain.MarketTierState{}, err
	}
	ts.state = next
	return copyState(next), nil
}

// TickAll ticks every open tier in parallel and broadcasts the new board.
func (s *MarketService) TickAll(ctx context.Context) ([]domain.MarketTierState, error) {
	open := make([]int, 0, len(s.order))
	for _, tier := range s.order {
		if !s.snapshot(tier).Closed {
			open = append(open, tier)
		}
	}

	results := make([]domain.MarketTierState, len(open))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range open {
		g.Go(func() error {
			state, err := s.Tick(gctx, tier)
			if err != nil {
				return fmt.Errorf("failed to tick tier %d: %w", tier, err)
			}
			results[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, notify.Event{Type: "market_pulse", Payload: s.States()}); err != nil {
			s.logger.Debug().Err(err).Msg("failed to broadcast market pulse")
		}
	}
	return results, nil
}

// State is a pure read of a tier's current state.
func (s *MarketService) State(tier int) (domain.MarketTierState, error) {
	if _, ok := s.tiers[tier]; !ok {
		return domain.MarketTierState{}, fmt.Errorf("%w: market tier %d", domain.ErrNotFound, tier)
	}
	return s.snapshot(tier), nil
}

func (s *MarketService) States() []domain.MarketTierState {
	out := make([]domain.MarketTierState, len(s.order))
	for i, tier := range s.order {
		out[i] = s.snapshot(tier)
	}
	return out
}

// Quote is the price a player receives per unit sold. Closed tiers do not trade.
func (s *MarketService) Quote(tier int) (int64, error) {
	state, err := s.State(tier)
	if err != nil {
		return 0, err
	}
	if state.Closed {
		return 0, fmt.Errorf("%w: tier %d", domain.ErrTierClosed, tier)
	}
	return state.CurrentPrice, nil
}

func (s *MarketService) snapshot(tier int) domain.MarketTierState {
	ts := s.tiers[tier]
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return copyState(ts.state)
}

// Run ticks all open tiers every interval until ctx is cancelled.
func (s *MarketService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("market ticker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("market ticker stopped")
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, constants.TickTimeout)
			if _, err := s.TickAll(tickCtx); err != nil {
				s.logger.Error().Err(err).Msg("market tick failed")
			}
			cancel()
		}
	}
}

func copyState(st domain.MarketTierState) domain.MarketTierState {
	st.History = slices.Clone(st.History)
	return st
}
