// Package catalog holds the static game configuration: shop items, equipment series and their
// upgrade tables, crafting recipes, material tiers, commission percents and market base prices.
// A Catalog is built once at startup and never mutated afterwards.
package catalog

import (
	"sort"
	"time"

	"mining-economy/internal/domain"
)

type Category string

const (
	CategoryEquipment  Category = "equipment"
	CategoryConsumable Category = "consumable"
	CategoryRepairKit  Category = "repair_kit"
	CategoryMaterial   Category = "material"
)

// Item is one of *Equipment, *Consumable, *RepairKit or *Material.
type Item interface {
	ItemID() string
	ItemName() string
	Category() Category
	// ShopPrice is zero for items that cannot be bought directly.
	ShopPrice() int64
	item()
}

type base struct {
	ID    string
	Name  string
	Price int64
}

func (b base) ItemID() string   { return b.ID }
func (b base) ItemName() string { return b.Name }
func (b base) ShopPrice() int64 { return b.Price }
func (base) item()              {}

type Equipment struct {
	base
	Series        string
	Rarity        string
	DailyBonus    int64
	MaxDurability int
	DecayPerHour  int
}

func (*Equipment) Category() Category { return CategoryEquipment }

type ConsumableKind string

const (
	ConsumableChip       ConsumableKind = "chip"
	ConsumableInsurance  ConsumableKind = "insurance"
	ConsumableAccelerant ConsumableKind = "accelerant"
	ConsumableOther      ConsumableKind = "other"
)

type AccelerantKind string

const (
	AccelerantTicket  AccelerantKind = "ticket"
	AccelerantNanobot AccelerantKind = "nanobot"
)

type Consumable struct {
	base
	Kind       ConsumableKind
	Accelerant AccelerantKind
	Skip       time.Duration // ticket accelerants only
}

func (*Consumable) Category() Category { return CategoryConsumable }

type RepairKit struct {
	base
	RepairValue int
	Fee         int64
	targets     map[string]struct{}
}

func (*RepairKit) Category() Category { return CategoryRepairKit }

func (k *RepairKit) Applies(equipmentTypeID string) bool {
	_, ok := k.targets[equipmentTypeID]
	return ok
}

type Material struct {
	base
	Tier int
}

func (*Material) Category() Category { return CategoryMaterial }

type Risk string

const (
	RiskNone      Risk = "NONE"
	RiskDowngrade Risk = "DOWNGRADE"
	RiskReset     Risk = "RESET"
)

type UpgradeStep struct {
	ChipCost       int64
	MaterialTier   int
	MaterialAmount int64
	Fee            int64
	SuccessChance  float64
	Risk           Risk
}

type Salvage struct {
	Tier   int
	Amount int64
}

type Series struct {
	ID            string
	GrowthPercent int64
	DestroyAtZero bool
	Salvage       Salvage
	steps         map[int]UpgradeStep
}

// Step returns the upgrade attempt parameters for an item currently at level.
func (s *Series) Step(level int) (UpgradeStep, bool) {
	step, ok := s.steps[level]
	return step, ok
}

// BonusAt is the daily bonus of an item of this series at level. Level 0 earns the base bonus.
func (s *Series) BonusAt(base int64, level int) int64 {
	if level <= 1 {
		return base
	}
	return base + base*s.GrowthPercent*int64(level-1)/100
}

type MaterialCost struct {
	Tier   int
	Amount int64
}

type Recipe struct {
	Output       string
	Quantity     int64
	Duration     time.Duration
	Fee          int64
	Materials    []MaterialCost
	Prerequisite string
}

type MaterialTier struct {
	Tier         int
	Name         string
	RefineAmount int64 // units of this tier consumed per unit of the next tier
	RefineFee    int64
}

type MarketTier struct {
	Tier      int
	BasePrice int64
	Closed    bool
}

type Market struct {
	MaxStepPercent float64
	MaxBandPercent float64
	HistoryLength  int
	Tiers          []MarketTier
}

type Commission struct {
	MaxDepth int
	// basis points per trigger kind, index 0 = level 1
	bps map[domain.TriggerKind][]int64
}

// BasisPoints returns the commission rate for level (1-indexed) in hundredths of a percent.
func (c Commission) BasisPoints(kind domain.TriggerKind, level int) int64 {
	rates := c.bps[kind]
	if level < 1 || level > len(rates) || level > c.MaxDepth {
		return 0
	}
	return rates[level-1]
}

func (c Commission) Supports(kind domain.TriggerKind) bool {
	_, ok := c.bps[kind]
	return ok
}

type Upgrade struct {
	MaxLevel      int
	ChipItem      string
	InsuranceItem string
}

type Catalog struct {
	Commission Commission
	Upgrade    Upgrade
	Market     Market

	items     map[string]Item
	series    map[string]*Series
	recipes   map[string]*Recipe
	materials map[int]MaterialTier
	tierOrder []int
}

func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

func (c *Catalog) Equipment(id string) (*Equipment, bool) {
	eq, ok := c.items[id].(*Equipment)
	return eq, ok
}

func (c *Catalog) Consumable(id string) (*Consumable, bool) {
	co, ok := c.items[id].(*Consumable)
	return co, ok
}

func (c *Catalog) RepairKit(id string) (*RepairKit, bool) {
	k, ok := c.items[id].(*RepairKit)
	return k, ok
}

func (c *Catalog) Series(id string) (*Series, bool) {
	s, ok := c.series[id]
	return s, ok
}

func (c *Catalog) Recipe(outputID string) (*Recipe, bool) {
	r, ok := c.recipes[outputID]
	return r, ok
}

func (c *Catalog) MaterialTier(tier int) (MaterialTier, bool) {
	m, ok := c.materials[tier]
	return m, ok
}

// NextTier returns the tier that tier refines into.
func (c *Catalog) NextTier(tier int) (int, bool) {
	for i, t := range c.tierOrder {
		if t == tier && i+1 < len(c.tierOrder) {
			return c.tierOrder[i+1], true
		}
	}
	return 0, false
}

func (c *Catalog) Tiers() []int {
	out := make([]int, len(c.tierOrder))
	copy(out, c.tierOrder)
	return out
}

func (c *Catalog) MarketTier(tier int) (MarketTier, bool) {
	for _, t := range c.Market.Tiers {
		if t.Tier == tier {
			return t, true
		}
	}
	return MarketTier{}, false
}

func (c *Catalog) ItemIDs() []string {
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
