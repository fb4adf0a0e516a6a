package service

import (
	"testing"
	"time"

	"mining-economy/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPlayer(t *testing.T) {
	h := newHarness(t)
	a := h.register("A", "", 250)
	assert.Equal(t, int64(250), a.Balance)

	b := h.register("", "A", 0)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "A", b.ReferrerID)
	assert.Equal(t, 1, h.player("A").TotalInvited)

	_, err := h.economy.RegisterPlayer(h.ctx, RegisterRequest{ID: "C", ReferrerID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
	_, err = h.economy.RegisterPlayer(h.ctx, RegisterRequest{ID: "A"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	_, err = h.economy.RegisterPlayer(h.ctx, RegisterRequest{ID: "D", ReferrerID: "D"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.economy.RegisterPlayer(h.ctx, RegisterRequest{ID: "E", StartingBalance: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.Len(t, h.sink.For("A"), 1)
	h.assertLedgerConsistent()
}

func TestBuyPaysCommissionChain(t *testing.T) {
	h := newHarness(t)
	chain(h)

	res, err := h.economy.Buy(h.ctx, "D", "basic_rig", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), res.Transaction.Amount)
	require.Len(t, res.Minted.Equipment, 1)
	assert.Equal(t, 100, res.Minted.Equipment[0].CurrentDurability)
	require.Len(t, res.Commission.Posted, 3)

	assert.Equal(t, int64(0), h.balance("D"))
	assert.Equal(t, int64(50), h.balance("C"))
	assert.Equal(t, int64(20), h.balance("B"))
	assert.Equal(t, int64(10), h.balance("A"))
	assert.Len(t, h.sink.For("C"), 2, "invite plus commission")
	h.assertLedgerConsistent()
}

func TestBuyRejections(t *testing.T) {
	h := newHarness(t)
	chain(h)

	_, err := h.economy.Buy(h.ctx, "D", "advanced_rig", 1)
	assert.EqualError(t, err, "insufficient balance: have 1000, need 5000")
	assert.Equal(t, int64(0), h.balance("C"), "no commission for a failed purchase")

	_, err = h.economy.Buy(h.ctx, "D", "quantum_drill", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.economy.Buy(h.ctx, "D", "nothing", 1)
	assert.ErrorIs(t, err, domain.ErrUnknownItemType)
	_, err = h.economy.Buy(h.ctx, "D", "upgrade_chip", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	res, err := h.economy.Buy(h.ctx, "D", "upgrade_chip", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Minted.Quantity)
	assert.Equal(t, int64(3), h.stack("D", "upgrade_chip"))
	assert.Equal(t, int64(760), h.balance("D"))
	h.assertLedgerConsistent()
}

func TestClaimYieldStopsAtBreakage(t *testing.T) {
	h := newHarness(t)
	chain(h)
	_, err := h.economy.Buy(h.ctx, "D", "basic_rig", 1)
	require.NoError(t, err)

	// 100 durability at 1/h breaks after 100h; yield is 40/day for those 100h only
	h.clock.Advance(10 * 24 * time.Hour)
	res, err := h.economy.ClaimYield(h.ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, int64(166), res.Amount)
	require.Len(t, res.Commission.Posted, 2)
	assert.Equal(t, int64(3), res.Commission.Posted[0].Amount)
	assert.Equal(t, int64(1), res.Commission.Posted[1].Amount)
	assert.Equal(t, int64(166), h.balance("D"))

	h.clock.Advance(24 * time.Hour)
	res, err = h.economy.ClaimYield(h.ctx, "D")
	require.NoError(t, err)
	assert.Zero(t, res.Amount, "broken equipment earns nothing")
	assert.Nil(t, res.Transaction)
	h.assertLedgerConsistent()
}

func TestRefineAndSell(t *testing.T) {
	h := newHarness(t)
	h.register("alice", "", 40)
	h.give("alice", 1, 25)

	res, err := h.economy.RefineMaterial(h.ctx, "alice", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Consumed)
	assert.Equal(t, int64(40), res.Fee)
	assert.Equal(t, int64(5), h.material("alice", 1))
	assert.Equal(t, int64(2), h.material("alice", 2))
	assert.Zero(t, h.balance("alice"))

	_, err = h.economy.RefineMaterial(h.ctx, "alice", 1, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientResources)
	_, err = h.economy.RefineMaterial(h.ctx, "alice", 5, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	sale, err := h.economy.SellMaterial(h.ctx, "alice", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(45), sale.Price)
	assert.Equal(t, int64(90), sale.Transaction.Amount)
	assert.Equal(t, int64(90), h.balance("alice"))
	assert.Zero(t, h.material("alice", 2))

	_, err = h.economy.SellMaterial(h.ctx, "alice", 2, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientResources)
	h.give("alice", 5, 1)
	_, err = h.economy.SellMaterial(h.ctx, "alice", 5, 1)
	assert.ErrorIs(t, err, domain.ErrTierClosed)
	assert.Equal(t, int64(1), h.material("alice", 5))
	h.assertLedgerConsistent()
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	h.register("alice", "", 0)
	h.buyEquipment("alice", "basic_rig")
	h.give("alice", 2, 3)
	h.giveStack("alice", "nanobot", 1)
	h.clock.Advance(5 * time.Hour)

	snap, err := h.economy.Snapshot(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Player.ID)
	assert.Equal(t, domain.MaterialLedger{2: 3}, snap.Materials)
	assert.Equal(t, domain.Stacks{"nanobot": 1}, snap.Stacks)
	require.Len(t, snap.Equipment, 1)
	assert.Equal(t, 95, snap.Equipment[0].CurrentDurability)
	assert.Len(t, snap.Transactions, 2)

	_, err = h.economy.Snapshot(h.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestUpgradeDestructionPaysYieldCommission(t *testing.T) {
	h := newHarness(t)
	h.register("A", "", 0)
	h.register("B", "A", 300)
	drill := h.mintEquipment("B", "quantum_drill", 1)
	h.giveStack("B", "upgrade_chip", 2)
	h.give("B", 2, 10)
	h.clock.Advance(48 * time.Hour)

	h.rng.set(0.99)
	res, err := h.economy.Upgrade(h.ctx, "B", drill.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDestroyed, res.Outcome)
	assert.Equal(t, int64(1800), res.YieldCredited)
	require.NotNil(t, res.Commission)
	require.Len(t, res.Commission.Posted, 1)
	assert.Equal(t, int64(36), h.balance("A"))
	h.assertLedgerConsistent()
}

func TestFrequentClaimsEarnFullYield(t *testing.T) {
	h := newHarness(t)
	h.register("alice", "", 0)
	h.buyEquipment("alice", "basic_rig")

	var claimed int64
	for range 24 {
		h.clock.Advance(time.Hour)
		res, err := h.economy.ClaimYield(h.ctx, "alice")
		require.NoError(t, err)
		claimed += res.Amount
	}
	assert.Equal(t, int64(40), claimed)
	assert.Equal(t, int64(40), h.balance("alice"))

	snap, err := h.economy.Snapshot(h.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, snap.Equipment, 1)
	assert.Equal(t, 76, snap.Equipment[0].CurrentDurability)
	h.assertLedgerConsistent()
}
