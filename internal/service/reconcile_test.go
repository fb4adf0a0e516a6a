package service

import (
	"testing"
	"time"

	"mining-economy/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileCorrectsReferralStats(t *testing.T) {
	h := newHarness(t)
	chain(h)
	_, err := h.economy.Buy(h.ctx, "D", "basic_rig", 1)
	require.NoError(t, err)

	_, err = h.db.Exec(`UPDATE players SET total_earned = 999, total_invited = 7 WHERE id = 'C'`)
	require.NoError(t, err)
	_, err = h.db.Exec(`UPDATE players SET total_earned = 0 WHERE id = 'A'`)
	require.NoError(t, err)

	report, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Players)
	assert.Equal(t, 2, report.EarnedCorrected)
	assert.Equal(t, 1, report.InvitedCorrected)
	assert.Empty(t, report.BalanceDrift)

	c := h.player("C")
	assert.Equal(t, int64(50), c.TotalEarned)
	assert.Equal(t, 1, c.TotalInvited)
	assert.Equal(t, int64(10), h.player("A").TotalEarned)

	again, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, again.EarnedCorrected)
	assert.Zero(t, again.InvitedCorrected)
}

func TestReconcileReportsBalanceDriftWithoutTouchingIt(t *testing.T) {
	h := newHarness(t)
	h.register("alice", "", 100)
	_, err := h.db.Exec(`UPDATE players SET balance = 130 WHERE id = 'alice'`)
	require.NoError(t, err)

	report, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	require.Len(t, report.BalanceDrift, 1)
	assert.Equal(t, Drift{PlayerID: "alice", Balance: 130, Ledger: 100}, report.BalanceDrift[0])
	assert.Equal(t, int64(130), h.balance("alice"))
}

func TestReconcilePagesPastStuckFailures(t *testing.T) {
	h := newHarness(t)
	chain(h)
	h.reconcile.batch = 2

	q := h.store.Queries()
	stuck := &domain.CommissionFailure{BuyerID: "D", AncestorID: "ghost", Level: 1, Kind: domain.KindCommissionBuy,
		Amount: 50, SourceRef: "order-0", Error: "boom", CreatedAt: epoch}
	require.NoError(t, q.InsertCommissionFailure(h.ctx, stuck))
	for i, ref := range []string{"order-1", "order-2", "order-3"} {
		f := &domain.CommissionFailure{BuyerID: "D", AncestorID: "C", Level: 1, Kind: domain.KindCommissionBuy,
			Amount: 50, SourceRef: ref, Error: "boom", CreatedAt: epoch.Add(time.Duration(i+1) * time.Minute)}
		require.NoError(t, q.InsertCommissionFailure(h.ctx, f))
	}

	report, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Replayed)
	assert.Equal(t, 1, report.ReplayFailed)
	assert.Equal(t, 4, report.Players)
	assert.Equal(t, int64(150), h.balance("C"))

	open, err := q.ListOpenCommissionFailures(h.ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, stuck.ID, open[0].ID)

	again, err := h.reconcile.Run(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Replayed)
	assert.Equal(t, 1, again.ReplayFailed)
	h.assertLedgerConsistent()
}

func TestReplayResolvesLandedPayoutWithoutPosting(t *testing.T) {
	h := newHarness(t)
	chain(h)

	trigger := Trigger{BuyerID: "D", Amount: 1000, Kind: domain.TriggerPurchase, SourceRef: "order-5"}
	_, err := h.commission.PayCommission(h.ctx, trigger)
	require.NoError(t, err)

	q := h.store.Queries()
	f := &domain.CommissionFailure{BuyerID: "D", AncestorID: "C", Level: 1, Kind: domain.KindCommissionBuy,
		Amount: 50, SourceRef: "order-5", Error: "timeout", CreatedAt: epoch}
	require.NoError(t, q.InsertCommissionFailure(h.ctx, f))

	posted, err := h.commission.Replay(h.ctx, *f)
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Equal(t, int64(50), h.balance("C"))

	open, err := q.ListOpenCommissionFailures(h.ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = h.commission.Replay(h.ctx, domain.CommissionFailure{ID: "x", AncestorID: "C", Kind: domain.KindPurchase, SourceRef: "order-6", Level: 1, Amount: 5})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int64(50), h.balance("C"))
}
