package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mining-economy/internal/catalog"
	"mining-economy/internal/database"
	"mining-economy/internal/domain"
	"mining-economy/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// seqRNG replays vals in order, wrapping around.
type seqRNG struct {
	mu   sync.Mutex
	vals []float64
	i    int
}

func (r *seqRNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func (r *seqRNG) set(vals ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = vals
	r.i = 0
}

type recordingSink struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (s *recordingSink) Notify(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) For(userID string) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

var errInjected = errors.New("injected write failure")

// flakyStore fails the Atomic calls whose 1-based sequence numbers are listed in failOn.
type flakyStore struct {
	*repository.Store
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *flakyStore) Atomic(ctx context.Context, fn func(q *repository.Queries) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.Store.Atomic(ctx, fn)
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	db      *sqlx.DB
	store   *repository.Store
	catalog *catalog.Catalog
	clock   *fakeClock
	rng     *seqRNG
	sink    *recordingSink

	commission *CommissionService
	equipment  *EquipmentService
	crafting   *CraftingService
	market     *MarketService
	economy    *EconomyService
	reconcile  *ReconcileService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := catalog.Load("")
	require.NoError(t, err)
	return newHarnessWith(t, cat)
}

func newHarnessWith(t *testing.T, cat *catalog.Catalog) *harness {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "economy.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		store:   repository.NewStore(db, zerolog.Nop()),
		catalog: cat,
		clock:   &fakeClock{now: epoch},
		rng:     &seqRNG{vals: []float64{0.5}},
		sink:    &recordingSink{},
	}
	h.wire(h.store)
	return h
}

// wire builds the services on top of store, which may wrap h.store.
func (h *harness) wire(store Store) {
	logger := zerolog.Nop()
	h.commission = NewCommissionService(store, h.catalog, h.clock, logger)
	h.equipment = NewEquipmentService(store, h.catalog, h.rng, h.clock, logger)
	h.crafting = NewCraftingService(store, h.catalog, h.clock, logger)
	h.market = NewMarketService(store, h.catalog, h.rng, h.clock, nil, logger)
	require.NoError(h.t, h.market.Load(h.ctx))
	h.economy = NewEconomyService(store, h.catalog, h.clock, h.commission, h.equipment, h.crafting, h.market, h.sink, logger)
	h.reconcile = NewReconcileService(store, h.commission, h.clock, logger)
}

func (h *harness) register(id, referrer string, balance int64) *domain.Player {
	h.t.Helper()
	p, err := h.economy.RegisterPlayer(h.ctx, RegisterRequest{ID: id, ReferrerID: referrer, StartingBalance: balance})
	require.NoError(h.t, err)
	return p
}

func (h *harness) player(id string) *domain.Player {
	h.t.Helper()
	p, err := h.store.Queries().GetPlayer(h.ctx, id)
	require.NoError(h.t, err)
	return p
}

func (h *harness) balance(id string) int64 {
	return h.player(id).Balance
}

func (h *harness) material(id string, tier int) int64 {
	h.t.Helper()
	n, err := h.store.Queries().GetMaterial(h.ctx, id, tier)
	require.NoError(h.t, err)
	return n
}

func (h *harness) stack(id, itemTypeID string) int64 {
	h.t.Helper()
	n, err := h.store.Queries().GetStack(h.ctx, id, itemTypeID)
	require.NoError(h.t, err)
	return n
}

func (h *harness) give(id string, tier int, qty int64) {
	h.t.Helper()
	require.NoError(h.t, h.store.Queries().AdjustMaterial(h.ctx, id, tier, qty))
}

func (h *harness) giveStack(id, itemTypeID string, qty int64) {
	h.t.Helper()
	require.NoError(h.t, h.store.Queries().AdjustStack(h.ctx, id, itemTypeID, qty))
}

// buyEquipment purchases one piece of equipment after topping the balance up by its price.
func (h *harness) buyEquipment(id, typeID string) domain.EquipmentItem {
	h.t.Helper()
	it, ok := h.catalog.Item(typeID)
	require.True(h.t, ok)
	_, err := h.economy.Grant(h.ctx, id, it.ShopPrice(), "test funds")
	require.NoError(h.t, err)
	res, err := h.economy.Buy(h.ctx, id, typeID, 1)
	require.NoError(h.t, err)
	require.Len(h.t, res.Minted.Equipment, 1)
	return res.Minted.Equipment[0]
}

// mintEquipment creates equipment directly, for types that are not sold in the shop.
func (h *harness) mintEquipment(id, typeID string, level int) domain.EquipmentItem {
	h.t.Helper()
	eq, ok := h.catalog.Equipment(typeID)
	require.True(h.t, ok)
	var item *domain.EquipmentItem
	err := h.store.Atomic(h.ctx, func(q *repository.Queries) error {
		var err error
		item, err = mintEquipment(h.ctx, q, id, eq, h.clock.Now())
		if err != nil {
			return err
		}
		if level != 1 {
			item.Level = level
			return q.UpdateEquipment(h.ctx, item)
		}
		return nil
	})
	require.NoError(h.t, err)
	return *item
}

// assertLedgerConsistent checks balance == sum of completed transactions for every player.
func (h *harness) assertLedgerConsistent() {
	h.t.Helper()
	q := h.store.Queries()
	players, err := q.ListPlayers(h.ctx, "", 1000)
	require.NoError(h.t, err)
	for _, p := range players {
		sum, err := q.SumCompleted(h.ctx, p.ID)
		require.NoError(h.t, err)
		require.Equalf(h.t, p.Balance, sum, "ledger mismatch for %s", p.ID)
		require.GreaterOrEqual(h.t, p.Balance, int64(0))
	}
}
