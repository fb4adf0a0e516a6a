package domain

import (
	"time"
)

type Player struct {
	ID           string    `json:"id"`
	ReferrerID   string    `json:"referrerId,omitempty"` // empty when the player joined without an invite
	Balance      int64     `json:"balance"`
	TotalInvited int       `json:"totalInvited"`
	TotalEarned  int64     `json:"totalEarned"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type TransactionKind string

const (
	KindGrant           TransactionKind = "grant"
	KindPurchase        TransactionKind = "purchase"
	KindYield           TransactionKind = "yield"
	KindCommissionBuy   TransactionKind = "commission-buy"
	KindCommissionYield TransactionKind = "commission-yield"
	KindCraftFee        TransactionKind = "craft-fee"
	KindUpgradeFee      TransactionKind = "upgrade-fee"
	KindRepairFee       TransactionKind = "repair-fee"
	KindRefineFee       TransactionKind = "refine-fee"
	KindMarketSale      TransactionKind = "market-sale"
)

func (k TransactionKind) IsCommission() bool {
	return k == KindCommissionBuy || k == KindCommissionYield
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

type Transaction struct {
	ID             string            `json:"id"`                       // nanoid
	PlayerID       string            `json:"playerId"`
	Kind           TransactionKind   `json:"kind"`
	Amount         int64             `json:"amount"`                   // signed: credits positive, debits negative
	Status         TransactionStatus `json:"status"`
	Level          int               `json:"level"`                    // commission level, 0 for everything else
	Description    string            `json:"description"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type EquipmentItem struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"ownerId"`
	TypeID            string    `json:"typeId"`
	Series            string    `json:"series"`
	Rarity            string    `json:"rarity"`
	Level             int       `json:"level"`
	CurrentDurability int       `json:"currentDurability"`
	MaxDurability     int       `json:"maxDurability"`
	DailyBonus        int64     `json:"dailyBonus"`
	DecayPerHour      int       `json:"decayPerHour"`
	PendingYield      int64     `json:"pendingYield"`
	YieldCarry        int64     `json:"-"` // unit-seconds earned toward the next whole unit of yield
	DecayedAt         time.Time `json:"decayedAt"`
	YieldedAt         time.Time `json:"yieldedAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (e EquipmentItem) Broken() bool {
	return e.CurrentDurability <= 0
}

type JobState string

const (
	JobPending JobState = "PENDING"
	JobReady   JobState = "READY"
	JobClaimed JobState = "CLAIMED"
)

type CraftingJob struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	ItemTypeID string     `json:"itemTypeId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishAt   time.Time  `json:"finishAt"`
	Claimed    bool       `json:"claimed"`
	ClaimedAt  *time.Time `json:"claimedAt,omitempty"`
}

func (j CraftingJob) State(now time.Time) JobState {
	switch {
	case j.Claimed:
		return JobClaimed
	case !now.Before(j.FinishAt):
		return JobReady
	default:
		return JobPending
	}
}

func (j CraftingJob) Remaining(now time.Time) time.Duration {
	if d := j.FinishAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// MaterialLedger maps tier -> quantity.
type MaterialLedger map[int]int64

// Stacks maps consumable item type -> quantity.
type Stacks map[string]int64

type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

type MarketTierState struct {
	Tier          int       `json:"tier"`
	BasePrice     int64     `json:"basePrice"`
	CurrentPrice  int64     `json:"currentPrice"`
	PreviousPrice int64     `json:"previousPrice"`
	Trend         Trend     `json:"trend"`
	History       []int64   `json:"history"`
	Closed        bool      `json:"closed"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	UserID   string   `json:"userId"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// CommissionFailure is a payout level that could not be written and waits for reconciliation.
type CommissionFailure struct {
	ID         string          `json:"id"`
	BuyerID    string          `json:"buyerId"`
	AncestorID string          `json:"ancestorId"`
	Level      int             `json:"level"`
	Kind       TransactionKind `json:"kind"`
	Amount     int64           `json:"amount"`
	SourceRef  string          `json:"sourceRef"`
	Error      string          `json:"error"`
	Resolved   bool            `json:"resolved"`
	CreatedAt  time.Time       `json:"createdAt"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty"`
}

// TriggerKind is the player action a commission is paid on.
type TriggerKind string

const (
	TriggerPurchase TriggerKind = "purchase"
	TriggerYield    TriggerKind = "yield"
)

func (t TriggerKind) CommissionKind() (TransactionKind, bool) {
	switch t {
	case TriggerPurchase:
		return KindCommissionBuy, true
	case TriggerYield:
		return KindCommissionYield, true
	}
	return "", false
}
