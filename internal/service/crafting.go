package service

import (
	"context"
	"fmt"
	"time"

	"mining-economy/internal/catalog"
	"mining-economy/internal/clock"
	"mining-economy/internal/domain"
	"mining-economy/internal/repository"

	"github.com/rs/zerolog"
)

// JobView is a crafting job with its state derived at read time.
type JobView struct {
	domain.CraftingJob
	State     domain.JobState `json:"state"`
	Remaining time.Duration   `json:"remaining"`
}

func viewJob(j domain.CraftingJob, now time.Time) JobView {
	return JobView{CraftingJob: j, State: j.State(now), Remaining: j.Remaining(now)}
}

type StartResult struct {
	Job JobView `json:"job"`
	// YieldCredited is the pending yield paid out when a prerequisite equipment item was consumed.
	YieldCredited int64 `json:"yieldCredited"`
}

type ClaimResult struct {
	Job    JobView   `json:"job"`
	Minted *Minted   `json:"minted"`
	Active []JobView `json:"active"`
}

type CraftingService struct {
	store   Store
	catalog *catalog.Catalog
	clock   clock.Clock
	logger  zerolog.Logger
}

func NewCraftingService(store Store, cat *catalog.Catalog, clk clock.Clock, logger zerolog.Logger) *CraftingService {
	return &CraftingService{store: store, catalog: cat, clock: clk, logger: logger}
}

func (s *CraftingService) StartCraft(ctx context.Context, playerID, itemTypeID string) (*StartResult, error) {
	recipe, ok := s.catalog.Recipe(itemTypeID)
	if !ok {
		return nil, fmt.Errorf("%w: no recipe for %s", domain.ErrUnknownItemType, itemTypeID)
	}

	result := &StartResult{}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		player, err := q.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		active, err := q.FindActiveJob(ctx, playerID, itemTypeID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: %s finishes at %s", domain.ErrAlreadyCrafting, itemTypeID, active.FinishAt.Format(time.RFC3339))
		}

		for _, m := range recipe.Materials {
			have, err := q.GetMaterial(ctx, playerID, m.Tier)
			if err != nil {
				return err
			}
			if have < m.Amount {
				return domain.Insufficient(fmt.Sprintf("tier %d material", m.Tier), have, m.Amount)
			}
		}
		if player.Balance < recipe.Fee {
			return domain.Insufficient("balance", player.Balance, recipe.Fee)
		}

		now := s.clock.Now()
		for _, m := range recipe.Materials {
			if err := q.AdjustMaterial(ctx, playerID, m.Tier, -m.Amount); err != nil {
				return err
			}
		}
		if recipe.Fee > 0 {
			err := q.PostTransaction(ctx, &domain.Transaction{
				PlayerID:    playerID,
				Kind:        domain.KindCraftFee,
				Amount:      -recipe.Fee,
				Description: fmt.Sprintf("craft %s", itemTypeID),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
		}
		if recipe.Prerequisite != "" {
			credited, err := s.consumePrerequisite(ctx, q, playerID, recipe.Prerequisite, now)
			if err != nil {
				return err
			}
			result.YieldCredited = credited
		}

		job := &domain.CraftingJob{
			OwnerID:    playerID,
			ItemTypeID: itemTypeID,
			StartedAt:  now,
			FinishAt:   now.Add(recipe.Duration),
		}
		if err := q.InsertJob(ctx, job); err != nil {
			return err
		}
		result.Job = viewJob(*job, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", playerID).
		Str("item_type_id", itemTypeID).
		Str("job_id", result.Job.ID).
		Time("finish_at", result.Job.FinishAt).
		Msg("crafting started")
	return result, nil
}

// consumePrerequisite takes one unit of the prerequisite: the lowest level owned item for
// equipment, one stack unit otherwise.
func (s *CraftingService) consumePrerequisite(ctx context.Context, q *repository.Queries, playerID, typeID string, now time.Time) (int64, error) {
	if _, ok := s.catalog.Equipment(typeID); ok {
		item, err := q.FindEquipmentByType(ctx, playerID, typeID)
		if err != nil {
			return 0, err
		}
		if item == nil {
			return 0, fmt.Errorf("%w: %s", domain.ErrMissingPrerequisiteItem, typeID)
		}
		accrued := domain.Accrue(*item, now)
		credited, err := creditYield(ctx, q, &accrued, now, "consumed by crafting")
		if err != nil {
			return 0, err
		}
		return credited, q.DeleteEquipment(ctx, item.ID)
	}

	owned, err := q.GetStack(ctx, playerID, typeID)
	if err != nil {
		return 0, err
	}
	if owned < 1 {
		return 0, fmt.Errorf("%w: %s", domain.ErrMissingPrerequisiteItem, typeID)
	}
	return 0, q.AdjustStack(ctx, playerID, typeID, -1)
}

// ApplySkip spends one accelerant on a pending job. Tickets never move FinishAt before now.
func (s *CraftingService) ApplySkip(ctx context.Context, playerID, jobID, accelerantTypeID string) (*JobView, error) {
	accelerant, ok := s.catalog.Consumable(accelerantTypeID)
	if !ok || accelerant.Kind != catalog.ConsumableAccelerant {
		return nil, domain.Invalid("%s is not an accelerant", accelerantTypeID)
	}

	var view JobView
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		job, err := s.ownedJob(ctx, q, playerID, jobID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if job.Claimed {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, jobID)
		}
		if job.State(now) == domain.JobReady {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyReady, jobID)
		}

		owned, err := q.GetStack(ctx, playerID, accelerantTypeID)
		if err != nil {
			return err
		}
		if owned < 1 {
			return fmt.Errorf("%w: %s", domain.ErrNoAccelerantOwned, accelerantTypeID)
		}
		if err := q.AdjustStack(ctx, playerID, accelerantTypeID, -1); err != nil {
			return err
		}

		switch accelerant.Accelerant {
		case catalog.AccelerantNanobot:
			job.FinishAt = now
		default:
			job.FinishAt = job.FinishAt.Add(-accelerant.Skip)
			if job.FinishAt.Before(now) {
				job.FinishAt = now
			}
		}
		if err := q.UpdateJobFinish(ctx, job.ID, job.FinishAt); err != nil {
			return err
		}
		view = viewJob(*job, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", playerID).
		Str("job_id", jobID).
		Str("accelerant", accelerantTypeID).
		Dur("remaining", view.Remaining).
		Msg("accelerant applied")
	return &view, nil
}

// ClaimCraft mints the job's output exactly once.
func (s *CraftingService) ClaimCraft(ctx context.Context, playerID, jobID string) (*ClaimResult, error) {
	result := &ClaimResult{}
	err := s.store.Atomic(ctx, func(q *repository.Queries) error {
		job, err := s.ownedJob(ctx, q, playerID, jobID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		switch job.State(now) {
		case domain.JobClaimed:
			return fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, jobID)
		case domain.JobPending:
			return fmt.Errorf("%w: %s has %s left", domain.ErrNotReady, jobID, job.Remaining(now).Round(time.Second))
		}

		recipe, ok := s.catalog.Recipe(job.ItemTypeID)
		if !ok {
			return fmt.Errorf("%w: no recipe for %s", domain.ErrUnknownItemType, job.ItemTypeID)
		}
		output, ok := s.catalog.Item(job.ItemTypeID)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownItemType, job.ItemTypeID)
		}

		if err := q.MarkJobClaimed(ctx, job.ID, now); err != nil {
			return err
		}
		job.Claimed = true
		job.ClaimedAt = &now

		minted, err := mint(ctx, q, playerID, output, recipe.Quantity, now)
		if err != nil {
			return err
		}

		active, err := q.ListActiveJobs(ctx, playerID)
		if err != nil {
			return err
		}
		result.Job = viewJob(*job, now)
		result.Minted = minted
		result.Active = make([]JobView, len(active))
		for i, j := range active {
			result.Active[i] = viewJob(j, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", playerID).
		Str("job_id", jobID).
		Str("item_type_id", result.Minted.ItemTypeID).
		Int64("quantity", result.Minted.Quantity).
		Msg("crafting claimed")
	return result, nil
}

func (s *CraftingService) ListJobs(ctx context.Context, playerID string) ([]JobView, error) {
	q := s.store.Queries()
	if _, err := q.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	jobs, err := q.ListActiveJobs(ctx, playerID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views := make([]JobView, len(jobs))
	for i, j := range jobs {
		views[i] = viewJob(j, now)
	}
	return views, nil
}

// ownedJob hides other players' jobs behind ErrJobNotFound.
func (s *CraftingService) ownedJob(ctx context.Context, q *repository.Queries, playerID, jobID string) (*domain.CraftingJob, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != playerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return job, nil
}
