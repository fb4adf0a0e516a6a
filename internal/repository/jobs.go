package repository

import (
	"context"
	"fmt"
	"time"

	"mining-economy/internal/domain"
)

type jobRow struct {
	ID         string `db:"id"`
	OwnerID    string `db:"owner_id"`
	ItemTypeID string `db:"item_type_id"`
	StartedAt  int64  `db:"started_at"`
	FinishAt   int64  `db:"finish_at"`
	Claimed    bool   `db:"claimed"`
	ClaimedAt  *int64 `db:"claimed_at"`
}

const jobColumns = `id, owner_id, item_type_id, started_at, finish_at, claimed, claimed_at`

func (r jobRow) toDomain() domain.CraftingJob {
	return domain.CraftingJob{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		ItemTypeID: r.ItemTypeID,
		StartedAt:  fromMillis(r.StartedAt),
		FinishAt:   fromMillis(r.FinishAt),
		Claimed:    r.Claimed,
		ClaimedAt:  fromNullMillis(r.ClaimedAt),
	}
}

func (q *Queries) GetJob(ctx context.Context, id string) (*domain.CraftingJob, error) {
	var row jobRow
	err := q.get(ctx, &row, `SELECT `+jobColumns+` FROM crafting_jobs WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crafting job %s: %w", id, err)
	}
	job := row.toDomain()
	return &job, nil
}

// InsertJob fails with domain.ErrAlreadyCrafting when the owner has an unclaimed job for the
// same output.
func (q *Queries) InsertJob(ctx context.Context, job *domain.CraftingJob) error {
	if job.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		job.ID = id
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO crafting_jobs (id, owner_id, item_type_id, started_at, finish_at, claimed)
		VALUES (?, ?, ?, ?, ?, 0)`,
		job.ID, job.OwnerID, job.ItemTypeID, toMillis(job.StartedAt), toMillis(job.FinishAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyCrafting, job.ItemTypeID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert crafting job: %w", err)
	}
	return nil
}

// FindActiveJob returns the unclaimed job for ownerID and itemTypeID, or nil.
func (q *Queries) FindActiveJob(ctx context.Context, ownerID, itemTypeID string) (*domain.CraftingJob, error) {
	var row jobRow
	err := q.get(ctx, &row, `SELECT `+jobColumns+` FROM crafting_jobs
		WHERE owner_id = ? AND item_type_id = ? AND claimed = 0`, ownerID, itemTypeID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active job %s for %s: %w", itemTypeID, ownerID, err)
	}
	job := row.toDomain()
	return &job, nil
}

func (q *Queries) UpdateJobFinish(ctx context.Context, id string, finishAt time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE crafting_jobs SET finish_at = ? WHERE id = ? AND claimed = 0`,
		toMillis(finishAt), id)
	if err != nil {
		return fmt.Errorf("failed to update crafting job %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, id)
	}
	return nil
}

// MarkJobClaimed flips claimed exactly once. A second claim gets domain.ErrAlreadyClaimed.
func (q *Queries) MarkJobClaimed(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE crafting_jobs SET claimed = 1, claimed_at = ? WHERE id = ? AND claimed = 0`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to claim crafting job %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, id)
	}
	return nil
}

func (q *Queries) ListActiveJobs(ctx context.Context, ownerID string) ([]domain.CraftingJob, error) {
	var rows []jobRow
	err := q.selectAll(ctx, &rows, `SELECT `+jobColumns+` FROM crafting_jobs
		WHERE owner_id = ? AND claimed = 0 ORDER BY finish_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crafting jobs for %s: %w", ownerID, err)
	}
	result := make([]domain.CraftingJob, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result, nil
}
