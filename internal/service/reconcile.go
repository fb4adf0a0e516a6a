package service

import (
	"context"
	"time"

	"mining-economy/internal/clock"
	"mining-economy/internal/constants"
	"mining-economy/internal/domain"
	"mining-economy/internal/repository"

	"github.com/rs/zerolog"
)

type Drift struct {
	PlayerID string `json:"playerId"`
	Balance  int64  `json:"balance"`
	Ledger   int64  `json:"ledger"`
}

type Report struct {
	Players          int     `json:"players"`
	Replayed         int     `json:"replayed"`
	AlreadyPosted    int     `json:"alreadyPosted"`
	ReplayFailed     int     `json:"replayFailed"`
	EarnedCorrected  int     `json:"earnedCorrected"`
	InvitedCorrected int     `json:"invitedCorrected"`
	BalanceDrift     []Drift `json:"balanceDrift,omitempty"`
}

// ReconcileService replays queued commission payouts and recomputes referral aggregates from the
// ledger. Running it twice in a row changes nothing the second time.
type ReconcileService struct {
	store      Store
	commission *CommissionService
	clock      clock.Clock
	logger     zerolog.Logger
	batch      int
}

func NewReconcileService(store Store, commission *CommissionService, clk clock.Clock, logger zerolog.Logger) *ReconcileService {
	return &ReconcileService{store: store, commission: commission, clock: clk, logger: logger, batch: constants.ReconcileBatchSize}
}

func (s *ReconcileService) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := s.replayFailures(ctx, report); err != nil {
		return nil, err
	}

	after := ""
	for {
		players, err := s.store.Queries().ListPlayers(ctx, after, s.batch)
		if err != nil {
			return nil, err
		}
		for _, p := range players {
			if err := s.reconcilePlayer(ctx, p.ID, report); err != nil {
				return nil, err
			}
		}
		report.Players += len(players)
		if len(players) < s.batch {
			break
		}
		after = players[len(players)-1].ID
	}

	s.logger.Info().
		Int("players", report.Players).
		Int("replayed", report.Replayed).
		Int("replay_failed", report.ReplayFailed).
		Int("earned_corrected", report.EarnedCorrected).
		Int("invited_corrected", report.InvitedCorrected).
		Int("balance_drift", len(report.BalanceDrift)).
		Msg("reconciliation finished")
	return report, nil
}

// replayFailures walks the open queue once. Entries that fail stay open and are counted once per
// run; paging skips past them.
func (s *ReconcileService) replayFailures(ctx context.Context, report *Report) error {
	failed := map[string]bool{}
	defer func() { report.ReplayFailed = len(failed) }()

	for {
		failures, err := s.store.Queries().ListOpenCommissionFailures(ctx, len(failed), s.batch)
		if err != nil {
			return err
		}
		fresh := false
		for _, f := range failures {
			if failed[f.ID] {
				continue
			}
			fresh = true
			posted, err := s.commission.Replay(ctx, f)
			if err != nil {
				failed[f.ID] = true
				s.logger.Warn().Err(err).Str("failure_id", f.ID).Msg("commission replay failed")
				continue
			}
			if posted {
				report.Replayed++
			} else {
				report.AlreadyPosted++
			}
		}
		if len(failures) < s.batch || !fresh {
			return nil
		}
	}
}

// reconcilePlayer corrects cached referral stats in one atomic step. Balance drift is only reported;
// the ledger is never rewritten here.
func (s *ReconcileService) reconcilePlayer(ctx context.Context, playerID string, report *Report) error {
	return s.store.Atomic(ctx, func(q *repository.Queries) error {
		player, err := q.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		earned, err := q.SumCompletedByKinds(ctx, playerID, domain.KindCommissionBuy, domain.KindCommissionYield)
		if err != nil {
			return err
		}
		invited, err := q.CountReferrals(ctx, playerID)
		if err != nil {
			return err
		}

		if earned != player.TotalEarned || invited != player.TotalInvited {
			if earned != player.TotalEarned {
				report.EarnedCorrected++
			}
			if invited != player.TotalInvited {
				report.InvitedCorrected++
			}
			s.logger.Warn().
				Str("player_id", playerID).
				Int64("earned_cached", player.TotalEarned).
				Int64("earned_ledger", earned).
				Int("invited_cached", player.TotalInvited).
				Int("invited_actual", invited).
				Msg("referral stats drifted, correcting")
			if err := q.SetReferralStats(ctx, playerID, invited, earned, s.clock.Now()); err != nil {
				return err
			}
		}

		ledger, err := q.SumCompleted(ctx, playerID)
		if err != nil {
			return err
		}
		if ledger != player.Balance {
			report.BalanceDrift = append(report.BalanceDrift, Drift{PlayerID: playerID, Balance: player.Balance, Ledger: ledger})
			s.logger.Error().
				Str("player_id", playerID).
				Int64("balance", player.Balance).
				Int64("ledger", ledger).
				Msg("balance does not match ledger")
		}
		return nil
	})
}

// Schedule runs reconciliation every interval until ctx is cancelled.
func (s *ReconcileService) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, constants.ReconcileBudget)
			if _, err := s.Run(runCtx); err != nil {
				s.logger.Error().Err(err).Msg("reconciliation failed")
			}
			cancel()
		}
	}
}
