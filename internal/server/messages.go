package server

import (
	"mining-economy/internal/domain"
	"mining-economy/internal/service"
)

type Empty struct{}

type PlayerRequest struct {
	PlayerID string `json:"playerId"`
}

type RegisterPlayerRequest struct {
	ID              string `json:"id"`
	ReferrerID      string `json:"referrerId"`
	StartingBalance int64  `json:"startingBalance"`
}

type PlayerResponse struct {
	Player *domain.Player `json:"player"`
}

type GrantRequest struct {
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount"`
	Note     string `json:"note"`
}

type TransactionResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
}

type BuyRequest struct {
	PlayerID   string `json:"playerId"`
	ItemTypeID string `json:"itemTypeId"`
	Quantity   int64  `json:"quantity"` // defaults to 1
}

type PayCommissionRequest struct {
	BuyerID   string `json:"buyerId"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	SourceRef string `json:"sourceRef"`
}

type ItemRequest struct {
	PlayerID string `json:"playerId"`
	ItemID   string `json:"itemId"`
}

type RepairRequest struct {
	PlayerID  string `json:"playerId"`
	ItemID    string `json:"itemId"`
	KitTypeID string `json:"kitTypeId"`
}

type UpgradeRequest struct {
	PlayerID     string `json:"playerId"`
	ItemID       string `json:"itemId"`
	UseInsurance bool   `json:"useInsurance"`
}

type EquipmentResponse struct {
	Item *domain.EquipmentItem `json:"item"`
}

type StartCraftRequest struct {
	PlayerID   string `json:"playerId"`
	ItemTypeID string `json:"itemTypeId"`
}

type JobRequest struct {
	PlayerID string `json:"playerId"`
	JobID    string `json:"jobId"`
}

type ApplySkipRequest struct {
	PlayerID         string `json:"playerId"`
	JobID            string `json:"jobId"`
	AccelerantTypeID string `json:"accelerantTypeId"`
}

type JobResponse struct {
	Job *service.JobView `json:"job"`
}

type JobsResponse struct {
	Jobs []service.JobView `json:"jobs"`
}

type RefineRequest struct {
	PlayerID string `json:"playerId"`
	FromTier int    `json:"fromTier"`
	Batches  int64  `json:"batches"` // defaults to 1
}

type SellRequest struct {
	PlayerID string `json:"playerId"`
	Tier     int    `json:"tier"`
	Quantity int64  `json:"quantity"`
}

type MarketRequest struct {
	Tier int `json:"tier"` // 0 selects every tier
}

type MarketResponse struct {
	Tiers []domain.MarketTierState `json:"tiers"`
}
