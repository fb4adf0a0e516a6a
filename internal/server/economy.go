package server

import (
	"context"
	"net/http"

	"mining-economy/internal/domain"
	"mining-economy/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const EconomyServicePath = "/economy.v1.EconomyService/"

const (
	RegisterPlayerProcedure = EconomyServicePath + "RegisterPlayer"
	GrantProcedure          = EconomyServicePath + "Grant"
	BuyProcedure            = EconomyServicePath + "Buy"
	ClaimYieldProcedure     = EconomyServicePath + "ClaimYield"
	PayCommissionProcedure  = EconomyServicePath + "PayCommission"
	RepairProcedure         = EconomyServicePath + "Repair"
	UpgradeProcedure        = EconomyServicePath + "Upgrade"
	SalvageProcedure        = EconomyServicePath + "Salvage"
	StartCraftProcedure     = EconomyServicePath + "StartCraft"
	ApplySkipProcedure      = EconomyServicePath + "ApplySkip"
	ClaimCraftProcedure     = EconomyServicePath + "ClaimCraft"
	ListJobsProcedure       = EconomyServicePath + "ListJobs"
	RefineProcedure         = EconomyServicePath + "Refine"
	SellProcedure           = EconomyServicePath + "Sell"
	GetMarketProcedure      = EconomyServicePath + "GetMarket"
	TickMarketProcedure     = EconomyServicePath + "TickMarket"
	GetSnapshotProcedure    = EconomyServicePath + "GetSnapshot"
	ReconcileProcedure      = EconomyServicePath + "Reconcile"
)

type EconomyServer struct {
	economy   *service.EconomyService
	reconcile *service.ReconcileService
}

func NewEconomyServer(economy *service.EconomyService, reconcile *service.ReconcileService) *EconomyServer {
	return &EconomyServer{economy: economy, reconcile: reconcile}
}

// Handler returns the path prefix and handler serving every procedure, in the shape of a generated
// connect service handler.
func (s *EconomyServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RegisterPlayerProcedure, connect.NewUnaryHandler(RegisterPlayerProcedure, s.RegisterPlayer, opts...))
	mux.Handle(GrantProcedure, connect.NewUnaryHandler(GrantProcedure, s.Grant, opts...))
	mux.Handle(BuyProcedure, connect.NewUnaryHandler(BuyProcedure, s.Buy, opts...))
	mux.Handle(ClaimYieldProcedure, connect.NewUnaryHandler(ClaimYieldProcedure, s.ClaimYield, opts...))
	mux.Handle(PayCommissionProcedure, connect.NewUnaryHandler(PayCommissionProcedure, s.PayCommission, opts...))
	mux.Handle(RepairProcedure, connect.NewUnaryHandler(RepairProcedure, s.Repair, opts...))
	mux.Handle(UpgradeProcedure, connect.NewUnaryHandler(UpgradeProcedure, s.Upgrade, opts...))
	mux.Handle(SalvageProcedure, connect.NewUnaryHandler(SalvageProcedure, s.Salvage, opts...))
	mux.Handle(StartCraftProcedure, connect.NewUnaryHandler(StartCraftProcedure, s.StartCraft, opts...))
	mux.Handle(ApplySkipProcedure, connect.NewUnaryHandler(ApplySkipProcedure, s.ApplySkip, opts...))
	mux.Handle(ClaimCraftProcedure, connect.NewUnaryHandler(ClaimCraftProcedure, s.ClaimCraft, opts...))
	mux.Handle(ListJobsProcedure, connect.NewUnaryHandler(ListJobsProcedure, s.ListJobs, opts...))
	mux.Handle(RefineProcedure, connect.NewUnaryHandler(RefineProcedure, s.Refine, opts...))
	mux.Handle(SellProcedure, connect.NewUnaryHandler(SellProcedure, s.Sell, opts...))
	mux.Handle(GetMarketProcedure, connect.NewUnaryHandler(GetMarketProcedure, s.GetMarket, opts...))
	mux.Handle(TickMarketProcedure, connect.NewUnaryHandler(TickMarketProcedure, s.TickMarket, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, s.GetSnapshot, opts...))
	mux.Handle(ReconcileProcedure, connect.NewUnaryHandler(ReconcileProcedure, s.Reconcile, opts...))
	return EconomyServicePath, mux
}

func (s *EconomyServer) RegisterPlayer(ctx context.Context, req *connect.Request[RegisterPlayerRequest]) (*connect.Response[PlayerResponse], error) {
	player, err := s.economy.RegisterPlayer(ctx, service.RegisterRequest{
		ID:              req.Msg.ID,
		ReferrerID:      req.Msg.ReferrerID,
		StartingBalance: req.Msg.StartingBalance,
	})
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&PlayerResponse{Player: player}), nil
}

func (s *EconomyServer) Grant(ctx context.Context, req *connect.Request[GrantRequest]) (*connect.Response[TransactionResponse], error) {
	tx, err := s.economy.Grant(ctx, req.Msg.PlayerID, req.Msg.Amount, req.Msg.Note)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&TransactionResponse{Transaction: tx}), nil
}

func (s *EconomyServer) Buy(ctx context.Context, req *connect.Request[BuyRequest]) (*connect.Response[service.BuyResult], error) {
	quantity := req.Msg.Quantity
	if quantity == 0 {
		quantity = 1
	}
	result, err := s.economy.Buy(ctx, req.Msg.PlayerID, req.Msg.ItemTypeID, quantity)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) ClaimYield(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[service.YieldResult], error) {
	result, err := s.economy.ClaimYield(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) PayCommission(ctx context.Context, req *connect.Request[PayCommissionRequest]) (*connect.Response[service.CommissionResult], error) {
	result, err := s.economy.PayCommission(ctx, service.Trigger{
		BuyerID:   req.Msg.BuyerID,
		Amount:    req.Msg.Amount,
		Kind:      domain.TriggerKind(req.Msg.Kind),
		SourceRef: req.Msg.SourceRef,
	})
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) Repair(ctx context.Context, req *connect.Request[RepairRequest]) (*connect.Response[EquipmentResponse], error) {
	item, err := s.economy.Repair(ctx, req.Msg.PlayerID, req.Msg.ItemID, req.Msg.KitTypeID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&EquipmentResponse{Item: item}), nil
}

func (s *EconomyServer) Upgrade(ctx context.Context, req *connect.Request[UpgradeRequest]) (*connect.Response[service.UpgradeOutcome], error) {
	result, err := s.economy.Upgrade(ctx, req.Msg.PlayerID, req.Msg.ItemID, req.Msg.UseInsurance)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) Salvage(ctx context.Context, req *connect.Request[ItemRequest]) (*connect.Response[service.SalvageOutcome], error) {
	result, err := s.economy.Salvage(ctx, req.Msg.PlayerID, req.Msg.ItemID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) StartCraft(ctx context.Context, req *connect.Request[StartCraftRequest]) (*connect.Response[service.CraftOutcome], error) {
	result, err := s.economy.StartCraft(ctx, req.Msg.PlayerID, req.Msg.ItemTypeID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) ApplySkip(ctx context.Context, req *connect.Request[ApplySkipRequest]) (*connect.Response[JobResponse], error) {
	job, err := s.economy.ApplySkip(ctx, req.Msg.PlayerID, req.Msg.JobID, req.Msg.AccelerantTypeID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&JobResponse{Job: job}), nil
}

func (s *EconomyServer) ClaimCraft(ctx context.Context, req *connect.Request[JobRequest]) (*connect.Response[service.ClaimResult], error) {
	result, err := s.economy.ClaimCraft(ctx, req.Msg.PlayerID, req.Msg.JobID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) ListJobs(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[JobsResponse], error) {
	jobs, err := s.economy.ListJobs(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&JobsResponse{Jobs: jobs}), nil
}

func (s *EconomyServer) Refine(ctx context.Context, req *connect.Request[RefineRequest]) (*connect.Response[service.RefineResult], error) {
	batches := req.Msg.Batches
	if batches == 0 {
		batches = 1
	}
	result, err := s.economy.RefineMaterial(ctx, req.Msg.PlayerID, req.Msg.FromTier, batches)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) Sell(ctx context.Context, req *connect.Request[SellRequest]) (*connect.Response[service.SaleResult], error) {
	result, err := s.economy.SellMaterial(ctx, req.Msg.PlayerID, req.Msg.Tier, req.Msg.Quantity)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(result), nil
}

func (s *EconomyServer) GetMarket(ctx context.Context, req *connect.Request[MarketRequest]) (*connect.Response[MarketResponse], error) {
	market := s.economy.Market()
	if req.Msg.Tier == 0 {
		return connect.NewResponse(&MarketResponse{Tiers: market.States()}), nil
	}
	state, err := market.State(req.Msg.Tier)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&MarketResponse{Tiers: []domain.MarketTierState{state}}), nil
}

// TickMarket advances one tier, or every open tier when Tier is zero.
func (s *EconomyServer) TickMarket(ctx context.Context, req *connect.Request[MarketRequest]) (*connect.Response[MarketResponse], error) {
	market := s.economy.Market()
	if req.Msg.Tier == 0 {
		states, err := market.TickAll(ctx)
		if err != nil {
			return nil, toConnectError(ctx, err)
		}
		return connect.NewResponse(&MarketResponse{Tiers: states}), nil
	}
	state, err := market.Tick(ctx, req.Msg.Tier)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&MarketResponse{Tiers: []domain.MarketTierState{state}}), nil
}

func (s *EconomyServer) GetSnapshot(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[service.Snapshot], error) {
	snap, err := s.economy.Snapshot(ctx, req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(snap), nil
}

func (s *EconomyServer) Reconcile(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[service.Report], error) {
	report, err := s.reconcile.Run(ctx)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(report), nil
}

func toConnectError(ctx context.Context, err error) error {
	code := codeOf(err)
	if code == connect.CodeInternal {
		zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
	}
	return connect.NewError(code, err)
}
