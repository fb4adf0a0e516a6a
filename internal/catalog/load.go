package catalog

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"mining-economy/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

type file struct {
	Commission struct {
		MaxDepth int                  `yaml:"max_depth"`
		Percents map[string][]float64 `yaml:"percents"`
	} `yaml:"commission"`
	Upgrade struct {
		MaxLevel      int    `yaml:"max_level"`
		ChipItem      string `yaml:"chip_item"`
		InsuranceItem string `yaml:"insurance_item"`
	} `yaml:"upgrade"`
	Materials []struct {
		Tier   int    `yaml:"tier"`
		Name   string `yaml:"name"`
		Refine struct {
			Amount int64 `yaml:"amount"`
			Fee    int64 `yaml:"fee"`
		} `yaml:"refine"`
	} `yaml:"materials"`
	Market struct {
		MaxStepPercent float64 `yaml:"max_step_percent"`
		MaxBandPercent float64 `yaml:"max_band_percent"`
		HistoryLength  int     `yaml:"history_length"`
		Tiers          []struct {
			Tier      int   `yaml:"tier"`
			BasePrice int64 `yaml:"base_price"`
			Closed    bool  `yaml:"closed"`
		} `yaml:"tiers"`
	} `yaml:"market"`
	Series []struct {
		ID            string `yaml:"id"`
		GrowthPercent int64  `yaml:"growth_percent"`
		DestroyAtZero bool   `yaml:"destroy_at_zero"`
		Salvage       struct {
			Tier   int   `yaml:"tier"`
			Amount int64 `yaml:"amount"`
		} `yaml:"salvage"`
		Upgrades []struct {
			Level          int     `yaml:"level"`
			ChipCost       int64   `yaml:"chip_cost"`
			MaterialTier   int     `yaml:"material_tier"`
			MaterialAmount int64   `yaml:"material_amount"`
			Fee            int64   `yaml:"fee"`
			SuccessChance  float64 `yaml:"success_chance"`
			Risk           string  `yaml:"risk"`
		} `yaml:"upgrades"`
	} `yaml:"series"`
	Items []struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		Category  string `yaml:"category"`
		Price     int64  `yaml:"price"`
		Equipment *struct {
			Series        string `yaml:"series"`
			Rarity        string `yaml:"rarity"`
			DailyBonus    int64  `yaml:"daily_bonus"`
			MaxDurability int    `yaml:"max_durability"`
			DecayPerHour  int    `yaml:"decay_per_hour"`
		} `yaml:"equipment"`
		Consumable *struct {
			Kind       string        `yaml:"kind"`
			Accelerant string        `yaml:"accelerant"`
			Skip       time.Duration `yaml:"skip"`
		} `yaml:"consumable"`
		RepairKit *struct {
			RepairValue int      `yaml:"repair_value"`
			Fee         int64    `yaml:"fee"`
			Targets     []string `yaml:"targets"`
		} `yaml:"repair_kit"`
		Material *struct {
			Tier int `yaml:"tier"`
		} `yaml:"material"`
	} `yaml:"items"`
	Recipes []struct {
		Output       string        `yaml:"output"`
		Quantity     int64         `yaml:"quantity"`
		Duration     time.Duration `yaml:"duration"`
		Fee          int64         `yaml:"fee"`
		Prerequisite string        `yaml:"prerequisite"`
		Materials    []struct {
			Tier   int   `yaml:"tier"`
			Amount int64 `yaml:"amount"`
		} `yaml:"materials"`
	} `yaml:"recipes"`
}

// Load reads the catalog at path, or the embedded default catalog when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c, err := build(&f)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func build(f *file) (*Catalog, error) {
	c := &Catalog{
		Commission: Commission{
			MaxDepth: f.Commission.MaxDepth,
			bps:      make(map[domain.TriggerKind][]int64),
		},
		Upgrade: Upgrade{
			MaxLevel:      f.Upgrade.MaxLevel,
			ChipItem:      f.Upgrade.ChipItem,
			InsuranceItem: f.Upgrade.InsuranceItem,
		},
		Market: Market{
			MaxStepPercent: f.Market.MaxStepPercent,
			MaxBandPercent: f.Market.MaxBandPercent,
			HistoryLength:  f.Market.HistoryLength,
		},
		items:     make(map[string]Item),
		series:    make(map[string]*Series),
		recipes:   make(map[string]*Recipe),
		materials: make(map[int]MaterialTier),
	}

	for kind, percents := range f.Commission.Percents {
		tk := domain.TriggerKind(kind)
		if _, ok := tk.CommissionKind(); !ok {
			return nil, fmt.Errorf("unknown commission trigger %q", kind)
		}
		rates := make([]int64, len(percents))
		for i, p := range percents {
			if p < 0 || p > 100 {
				return nil, fmt.Errorf("commission %s level %d: percent %.2f out of range", kind, i+1, p)
			}
			rates[i] = int64(math.Round(p * 100))
		}
		c.Commission.bps[tk] = rates
	}

	for _, m := range f.Materials {
		if _, dup := c.materials[m.Tier]; dup {
			return nil, fmt.Errorf("duplicate material tier %d", m.Tier)
		}
		c.materials[m.Tier] = MaterialTier{
			Tier:         m.Tier,
			Name:         m.Name,
			RefineAmount: m.Refine.Amount,
			RefineFee:    m.Refine.Fee,
		}
		c.tierOrder = append(c.tierOrder, m.Tier)
	}
	sort.Ints(c.tierOrder)

	for _, t := range f.Market.Tiers {
		c.Market.Tiers = append(c.Market.Tiers, MarketTier{Tier: t.Tier, BasePrice: t.BasePrice, Closed: t.Closed})
	}

	for _, s := range f.Series {
		series := &Series{
			ID:            s.ID,
			GrowthPercent: s.GrowthPercent,
			DestroyAtZero: s.DestroyAtZero,
			Salvage:       Salvage{Tier: s.Salvage.Tier, Amount: s.Salvage.Amount},
			steps:         make(map[int]UpgradeStep),
		}
		for _, u := range s.Upgrades {
			risk := Risk(u.Risk)
			if risk == "" {
				risk = RiskNone
			}
			series.steps[u.Level] = UpgradeStep{
				ChipCost:       u.ChipCost,
				MaterialTier:   u.MaterialTier,
				MaterialAmount: u.MaterialAmount,
				Fee:            u.Fee,
				SuccessChance:  u.SuccessChance,
				Risk:           risk,
			}
		}
		// a reset item climbs back out of level 0 on the level 1 terms
		if _, ok := series.steps[0]; !ok {
			if first, ok := series.steps[1]; ok {
				series.steps[0] = first
			}
		}
		c.series[s.ID] = series
	}

	for _, it := range f.Items {
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item %q", it.ID)
		}
		b := base{ID: it.ID, Name: it.Name, Price: it.Price}

		switch Category(it.Category) {
		case CategoryEquipment:
			if it.Equipment == nil {
				return nil, fmt.Errorf("item %q: missing equipment block", it.ID)
			}
			c.items[it.ID] = &Equipment{
				base:          b,
				Series:        it.Equipment.Series,
				Rarity:        it.Equipment.Rarity,
				DailyBonus:    it.Equipment.DailyBonus,
				MaxDurability: it.Equipment.MaxDurability,
				DecayPerHour:  it.Equipment.DecayPerHour,
			}
		case CategoryConsumable:
			if it.Consumable == nil {
				return nil, fmt.Errorf("item %q: missing consumable block", it.ID)
			}
			c.items[it.ID] = &Consumable{
				base:       b,
				Kind:       ConsumableKind(it.Consumable.Kind),
				Accelerant: AccelerantKind(it.Consumable.Accelerant),
				Skip:       it.Consumable.Skip,
			}
		case CategoryRepairKit:
			if it.RepairKit == nil {
				return nil, fmt.Errorf("item %q: missing repair_kit block", it.ID)
			}
			kit := &RepairKit{
				base:        b,
				RepairValue: it.RepairKit.RepairValue,
				Fee:         it.RepairKit.Fee,
				targets:     make(map[string]struct{}, len(it.RepairKit.Targets)),
			}
			for _, t := range it.RepairKit.Targets {
				kit.targets[t] = struct{}{}
			}
			c.items[it.ID] = kit
		case CategoryMaterial:
			if it.Material == nil {
				return nil, fmt.Errorf("item %q: missing material block", it.ID)
			}
			c.items[it.ID] = &Material{base: b, Tier: it.Material.Tier}
		default:
			return nil, fmt.Errorf("item %q: unknown category %q", it.ID, it.Category)
		}
	}

	for _, r := range f.Recipes {
		if _, dup := c.recipes[r.Output]; dup {
			return nil, fmt.Errorf("duplicate recipe for %q", r.Output)
		}
		qty := r.Quantity
		if qty == 0 {
			qty = 1
		}
		recipe := &Recipe{
			Output:       r.Output,
			Quantity:     qty,
			Duration:     r.Duration,
			Fee:          r.Fee,
			Prerequisite: r.Prerequisite,
		}
		for _, m := range r.Materials {
			recipe.Materials = append(recipe.Materials, MaterialCost{Tier: m.Tier, Amount: m.Amount})
		}
		c.recipes[r.Output] = recipe
	}

	return c, nil
}

// Validate checks cross references and numeric ranges.
func (c *Catalog) Validate() error {
	if c.Commission.MaxDepth < 1 {
		return fmt.Errorf("commission max_depth must be at least 1")
	}
	if c.Upgrade.MaxLevel < 1 {
		return fmt.Errorf("upgrade max_level must be at least 1")
	}
	if len(c.tierOrder) == 0 {
		return fmt.Errorf("at least one material tier is required")
	}
	for i := 1; i < len(c.tierOrder); i++ {
		if c.tierOrder[i] != c.tierOrder[i-1]+1 {
			return fmt.Errorf("material tiers must be contiguous, gap after tier %d", c.tierOrder[i-1])
		}
	}
	for i, t := range c.tierOrder {
		if i+1 < len(c.tierOrder) && c.materials[t].RefineAmount < 1 {
			return fmt.Errorf("material tier %d: refine amount must be at least 1", t)
		}
	}

	if chip, ok := c.Consumable(c.Upgrade.ChipItem); !ok || chip.Kind != ConsumableChip {
		return fmt.Errorf("upgrade chip_item %q is not a chip consumable", c.Upgrade.ChipItem)
	}
	if c.Upgrade.InsuranceItem != "" {
		if ins, ok := c.Consumable(c.Upgrade.InsuranceItem); !ok || ins.Kind != ConsumableInsurance {
			return fmt.Errorf("upgrade insurance_item %q is not an insurance consumable", c.Upgrade.InsuranceItem)
		}
	}

	if c.Market.MaxStepPercent < 0 || c.Market.MaxBandPercent < 0 || c.Market.MaxBandPercent >= 100 {
		return fmt.Errorf("market percents out of range")
	}
	if c.Market.HistoryLength < 1 {
		return fmt.Errorf("market history_length must be at least 1")
	}
	for _, t := range c.Market.Tiers {
		if _, ok := c.materials[t.Tier]; !ok {
			return fmt.Errorf("market tier %d has no material tier", t.Tier)
		}
		if t.BasePrice < 1 {
			return fmt.Errorf("market tier %d: base price must be positive", t.Tier)
		}
	}

	for _, s := range c.series {
		for level, step := range s.steps {
			if step.SuccessChance < 0 || step.SuccessChance > 1 {
				return fmt.Errorf("series %s level %d: success chance out of range", s.ID, level)
			}
			switch step.Risk {
			case RiskNone, RiskDowngrade, RiskReset:
			default:
				return fmt.Errorf("series %s level %d: unknown risk %q", s.ID, level, step.Risk)
			}
			if step.MaterialAmount > 0 {
				if _, ok := c.materials[step.MaterialTier]; !ok {
					return fmt.Errorf("series %s level %d: unknown material tier %d", s.ID, level, step.MaterialTier)
				}
			}
		}
		if s.Salvage.Amount > 0 {
			if _, ok := c.materials[s.Salvage.Tier]; !ok {
				return fmt.Errorf("series %s: unknown salvage tier %d", s.ID, s.Salvage.Tier)
			}
		}
	}

	for id, it := range c.items {
		switch v := it.(type) {
		case *Equipment:
			if _, ok := c.series[v.Series]; !ok {
				return fmt.Errorf("equipment %q: unknown series %q", id, v.Series)
			}
			if v.MaxDurability < 1 {
				return fmt.Errorf("equipment %q: max durability must be positive", id)
			}
		case *Consumable:
			if v.Kind == ConsumableAccelerant {
				switch v.Accelerant {
				case AccelerantNanobot:
				case AccelerantTicket:
					if v.Skip <= 0 {
						return fmt.Errorf("ticket %q: skip must be positive", id)
					}
				default:
					return fmt.Errorf("accelerant %q: unknown kind %q", id, v.Accelerant)
				}
			}
		case *RepairKit:
			for target := range v.targets {
				if _, ok := c.Equipment(target); !ok {
					return fmt.Errorf("repair kit %q: unknown target %q", id, target)
				}
			}
		case *Material:
			if _, ok := c.materials[v.Tier]; !ok {
				return fmt.Errorf("material %q: unknown tier %d", id, v.Tier)
			}
		}
	}

	for out, r := range c.recipes {
		if _, ok := c.items[out]; !ok {
			return fmt.Errorf("recipe output %q is not an item", out)
		}
		if r.Duration < 0 {
			return fmt.Errorf("recipe %q: negative duration", out)
		}
		if r.Prerequisite != "" {
			if _, ok := c.items[r.Prerequisite]; !ok {
				return fmt.Errorf("recipe %q: unknown prerequisite %q", out, r.Prerequisite)
			}
		}
		for _, m := range r.Materials {
			if _, ok := c.materials[m.Tier]; !ok {
				return fmt.Errorf("recipe %q: unknown material tier %d", out, m.Tier)
			}
		}
	}

	return nil
}
