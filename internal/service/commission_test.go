package service

import (
	"testing"

	"mining-economy/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain registers A <- B <- C <- D, D being the leaf.
func chain(h *harness) {
	h.register("A", "", 0)
	h.register("B", "A", 0)
	h.register("C", "B", 0)
	h.register("D", "C", 1000)
}

func TestCommissionChain(t *testing.T) {
	h := newHarness(t)
	chain(h)

	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 1000, Kind: domain.TriggerPurchase, SourceRef: "order-1"})
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.Len(t, res.Posted, 3)

	want := []struct {
		player string
		amount int64
	}{{"C", 50}, {"B", 20}, {"A", 10}}
	for i, w := range want {
		tx := res.Posted[i]
		assert.Equal(t, w.player, tx.PlayerID)
		assert.Equal(t, w.amount, tx.Amount)
		assert.Equal(t, i+1, tx.Level)
		assert.Equal(t, domain.KindCommissionBuy, tx.Kind)
		assert.Equal(t, domain.StatusCompleted, tx.Status)
		assert.Contains(t, tx.Description, "L")
		assert.Equal(t, w.amount, h.balance(w.player))
		assert.Equal(t, w.amount, h.player(w.player).TotalEarned)
	}
	assert.Equal(t, int64(1000), h.balance("D"))
	h.assertLedgerConsistent()
}

func TestCommissionFloorSkipsZero(t *testing.T) {
	h := newHarness(t)
	chain(h)

	// yield percents 2/1/0.5 on 100: 2, 1, floor(0.5) = 0
	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 100, Kind: domain.TriggerYield, SourceRef: "y-1"})
	require.NoError(t, err)
	require.Len(t, res.Posted, 2)
	assert.Equal(t, int64(2), res.Posted[0].Amount)
	assert.Equal(t, int64(1), res.Posted[1].Amount)
	assert.Equal(t, domain.KindCommissionYield, res.Posted[0].Kind)
	assert.Equal(t, int64(0), h.balance("A"))
}

func TestCommissionEdgeCases(t *testing.T) {
	h := newHarness(t)
	chain(h)

	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "A", Amount: 1000, Kind: domain.TriggerPurchase})
	require.NoError(t, err)
	assert.Empty(t, res.Posted, "no referrer pays nothing")

	res, err = h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 0, Kind: domain.TriggerPurchase})
	require.NoError(t, err)
	assert.Empty(t, res.Posted)

	_, err = h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 10, Kind: "deposit"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.commission.PayCommission(h.ctx, Trigger{BuyerID: "ghost", Amount: 10, Kind: domain.TriggerPurchase})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestCommissionIsIdempotentPerSource(t *testing.T) {
	h := newHarness(t)
	chain(h)

	trigger := Trigger{BuyerID: "D", Amount: 1000, Kind: domain.TriggerPurchase, SourceRef: "order-7"}
	_, err := h.commission.PayCommission(h.ctx, trigger)
	require.NoError(t, err)
	res, err := h.commission.PayCommission(h.ctx, trigger)
	require.NoError(t, err)
	assert.Empty(t, res.Posted)
	assert.Empty(t, res.Failures)
	assert.Equal(t, int64(50), h.balance("C"))
}

func TestCommissionStopsOnCycle(t *testing.T) {
	h := newHarness(t)
	h.register("A", "", 0)
	h.register("B", "A", 1000)
	_, err := h.db.Exec(`UPDATE players SET referrer_id = 'B' WHERE id = 'A'`)
	require.NoError(t, err)

	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "B", Amount: 1000, Kind: domain.TriggerPurchase})
	require.NoError(t, err)
	require.Len(t, res.Posted, 1)
	assert.Equal(t, "A", res.Posted[0].PlayerID)
	assert.Equal(t, int64(1000), h.balance("B"))
}

func TestCommissionStopsAtMissingAncestor(t *testing.T) {
	h := newHarness(t)
	chain(h)

	conn, err := h.db.Conn(h.ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(h.ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = conn.ExecContext(h.ctx, `UPDATE players SET referrer_id = 'gone' WHERE id = 'B'`)
	require.NoError(t, err)
	_, err = conn.ExecContext(h.ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 1000, Kind: domain.TriggerPurchase})
	require.NoError(t, err)
	require.Len(t, res.Posted, 2)
	assert.Equal(t, int64(0), h.balance("A"))
}

func TestCommissionPartialFailureIsQueuedAndReplayed(t *testing.T) {
	h := newHarness(t)
	chain(h)

	// Atomic calls: L1 post, L2 post (fails), queue L2, L3 post
	flaky := &flakyStore{Store: h.store, failOn: map[int]bool{2: true}}
	commission := NewCommissionService(flaky, h.catalog, h.clock, h.commission.logger)

	res, err := commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 1000, Kind: domain.TriggerPurchase, SourceRef: "order-9"})
	require.NoError(t, err)
	require.Len(t, res.Posted, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Level)
	assert.Equal(t, "B", res.Failures[0].AncestorID)
	assert.Equal(t, int64(20), res.Failures[0].Amount)
	assert.ErrorIs(t, res.Failures[0].Err, errInjected)

	assert.Equal(t, int64(50), h.balance("C"))
	assert.Equal(t, int64(0), h.balance("B"))
	assert.Equal(t, int64(10), h.balance("A"))
	assert.Equal(t, int64(1000), h.balance("D"))

	report, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, int64(20), h.balance("B"))
	assert.Equal(t, int64(20), h.player("B").TotalEarned)

	report, err = h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Replayed)
	assert.Zero(t, report.EarnedCorrected)
	assert.Empty(t, report.BalanceDrift)
	h.assertLedgerConsistent()
}

func TestCommissionRejectsOverflowingAmount(t *testing.T) {
	h := newHarness(t)
	chain(h)

	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 18446744073710551, Kind: domain.TriggerPurchase, SourceRef: "order-big"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, res)
	for _, id := range []string{"A", "B", "C"} {
		assert.Zero(t, h.balance(id), id)
	}

	// the largest accepted amount still pays without wrapping
	res, err = h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: maxTriggerAmount, Kind: domain.TriggerPurchase, SourceRef: "order-max"})
	require.NoError(t, err)
	require.Len(t, res.Posted, 3)
	for _, tx := range res.Posted {
		assert.Positive(t, tx.Amount)
	}
	assert.Equal(t, int64(maxTriggerAmount)*500/10000, h.balance("C"))
}

func TestCommissionQueuesUnreadableReferrer(t *testing.T) {
	h := newHarness(t)
	chain(h)

	_, err := h.db.Exec(`UPDATE players SET created_at = 'garbage' WHERE id = 'C'`)
	require.NoError(t, err)

	res, err := h.commission.PayCommission(h.ctx, Trigger{BuyerID: "D", Amount: 1000, Kind: domain.TriggerPurchase, SourceRef: "order-3"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	require.NotNil(t, res)
	assert.Empty(t, res.Posted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "C", res.Failures[0].AncestorID)
	assert.Equal(t, 1, res.Failures[0].Level)
	assert.Equal(t, int64(50), res.Failures[0].Amount)

	open, err := h.store.Queries().ListOpenCommissionFailures(h.ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "C", open[0].AncestorID)
	assert.Equal(t, "order-3", open[0].SourceRef)

	_, err = h.db.Exec(`UPDATE players SET created_at = updated_at WHERE id = 'C'`)
	require.NoError(t, err)

	report, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, int64(50), h.balance("C"))
	h.assertLedgerConsistent()
}
