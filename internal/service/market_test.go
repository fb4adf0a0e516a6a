package service

import (
	"testing"

	"mining-economy/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketTickStaysInBand(t *testing.T) {
	h := newHarness(t)
	h.rng.set(0.999, 0.999, 0.999, 0.0, 0.999, 0.0, 0.0, 0.0, 0.0, 0.0)

	// tier 2: base 45, band 25% -> [34, 56]
	var sawTop, sawBottom bool
	for range 200 {
		state, err := h.market.Tick(h.ctx, 2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.CurrentPrice, int64(34))
		assert.LessOrEqual(t, state.CurrentPrice, int64(56))
		sawTop = sawTop || state.CurrentPrice == 56
		sawBottom = sawBottom || state.CurrentPrice == 34
	}
	assert.True(t, sawBottom)
	assert.False(t, sawTop)

	h.rng.set(0.999)
	for range 200 {
		state, err := h.market.Tick(h.ctx, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, state.CurrentPrice, int64(56))
		sawTop = sawTop || state.CurrentPrice == 56
	}
	assert.True(t, sawTop)
}

func TestMarketTrendAndHistory(t *testing.T) {
	h := newHarness(t)

	h.rng.set(0.999)
	state, err := h.market.Tick(h.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(300), state.PreviousPrice)
	assert.Equal(t, int64(309), state.CurrentPrice)
	assert.Equal(t, domain.TrendUp, state.Trend)

	h.rng.set(0.5)
	state, err = h.market.Tick(h.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.TrendFlat, state.Trend)

	h.rng.set(0.0)
	state, err = h.market.Tick(h.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.TrendDown, state.Trend)
	assert.Equal(t, []int64{300, 309, 309, 300}, state.History)

	h.rng.set(0.5)
	for range 100 {
		state, err = h.market.Tick(h.ctx, 3)
		require.NoError(t, err)
	}
	assert.Len(t, state.History, h.catalog.Market.HistoryLength)
}

func TestMarketClosedTier(t *testing.T) {
	h := newHarness(t)

	_, err := h.market.Tick(h.ctx, 5)
	assert.ErrorIs(t, err, domain.ErrTierClosed)
	_, err = h.market.Quote(5)
	assert.ErrorIs(t, err, domain.ErrTierClosed)

	state, err := h.market.State(5)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), state.CurrentPrice)
	assert.True(t, state.Closed)

	_, err = h.market.Tick(h.ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketTickAllAndReload(t *testing.T) {
	h := newHarness(t)
	h.rng.set(0.999)

	states, err := h.market.TickAll(h.ctx)
	require.NoError(t, err)
	assert.Len(t, states, 4)

	tier4, err := h.market.State(4)
	require.NoError(t, err)
	assert.Equal(t, int64(1854), tier4.CurrentPrice)

	reloaded := NewMarketService(h.store, h.catalog, h.rng, h.clock, nil, zerolog.Nop())
	require.NoError(t, reloaded.Load(h.ctx))
	again, err := reloaded.State(4)
	require.NoError(t, err)
	assert.Equal(t, tier4.CurrentPrice, again.CurrentPrice)
	assert.Equal(t, tier4.History, again.History)
	assert.Len(t, reloaded.States(), 5)
}
