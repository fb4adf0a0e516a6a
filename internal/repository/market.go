package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"mining-economy/internal/domain"
)

type marketRow struct {
	Tier          int    `db:"tier"`
	BasePrice     int64  `db:"base_price"`
	CurrentPrice  int64  `db:"current_price"`
	PreviousPrice int64  `db:"previous_price"`
	Trend         string `db:"trend"`
	History       string `db:"history"`
	UpdatedAt     int64  `db:"updated_at"`
}

func (r marketRow) toDomain() (domain.MarketTierState, error) {
	var history []int64
	if err := json.Unmarshal([]byte(r.History), &history); err != nil {
		return domain.MarketTierState{}, fmt.Errorf("failed to decode history for tier %d: %w", r.Tier, err)
	}
	return domain.MarketTierState{
		Tier:          r.Tier,
		BasePrice:     r.BasePrice,
		CurrentPrice:  r.CurrentPrice,
		PreviousPrice: r.PreviousPrice,
		Trend:         domain.Trend(r.Trend),
		History:       history,
		UpdatedAt:     fromMillis(r.UpdatedAt),
	}, nil
}

func (q *Queries) UpsertMarketState(ctx context.Context, s domain.MarketTierState) error {
	history := s.History
	if history == nil {
		history = []int64{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history for tier %d: %w", s.Tier, err)
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO market_state (tier, base_price, current_price, previous_price, trend, history, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tier) DO UPDATE SET base_price = excluded.base_price, current_price = excluded.current_price,
			previous_price = excluded.previous_price, trend = excluded.trend, history = excluded.history,
			updated_at = excluded.updated_at`,
		s.Tier, s.BasePrice, s.CurrentPrice, s.PreviousPrice, string(s.Trend), string(encoded), toMillis(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save market state for tier %d: %w", s.Tier, err)
	}
	return nil
}

func (q *Queries) ListMarketStates(ctx context.Context) ([]domain.MarketTierState, error) {
	var rows []marketRow
	err := q.selectAll(ctx, &rows, `SELECT tier, base_price, current_price, previous_price, trend, history, updated_at
		FROM market_state ORDER BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to list market states: %w", err)
	}
	result := make([]domain.MarketTierState, 0, len(rows))
	for _, r := range rows {
		s, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}
