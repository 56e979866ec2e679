package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

const (
	defaultVerifyCooldownMinutes = 60
	defaultVerifyMaxAttempts     = 5
	defaultVerifyLimit           = 100
)

// QuotaReader is the governor slice the verifier gates on.
type QuotaReader interface {
	DailyRemaining() (remaining int, ok bool)
}

// VerifyReport summarises one verifier run.
type VerifyReport struct {
	Job          string `json:"job"`
	Candidates   int    `json:"candidates"`
	Calls        int    `json:"calls"`
	Verified     int    `json:"verified"`
	NotFound     int    `json:"not_found"`
	Blocked      int    `json:"blocked"`
	Retried      int    `json:"retried"`
	QuotaGuarded bool   `json:"quota_guarded,omitempty"`
}

// VerifierService confirms auto-finished scores against upstream. It only
// spends quota while the daily remaining sits above min_daily_quota, and it
// keeps the verification state machine monotone: pending rows end up
// verified or not_found, and nothing moves after that.
type VerifierService struct {
	cfg         *config.Config
	fixtureRepo fixture.Repository
	ingest      *IngestService
	quota       QuotaReader
	logger      *logging.Logger
	now         func() time.Time
}

func NewVerifierService(
	cfg *config.Config,
	fixtureRepo fixture.Repository,
	ingest *IngestService,
	quota QuotaReader,
	logger *logging.Logger,
) *VerifierService {
	if logger == nil {
		logger = logging.Default()
	}
	return &VerifierService{
		cfg:         cfg,
		fixtureRepo: fixtureRepo,
		ingest:      ingest,
		quota:       quota,
		logger:      logger,
		now:         time.Now,
	}
}

// RunVerifier processes flagged fixtures in one guarded sweep. A fixture
// the provider returns with a terminal status is upserted and marked
// verified; one returned still schedulable or in play stays pending for the
// next sweep; one omitted from a successful batch is marked not_found, since
// the provider answered authoritatively for the whole id list. Transient
// fetch failures record an attempt and leave the flag set, so the cooldown
// paces the retries; a fixture that exhausts its attempts that way is
// parked as blocked.
func (s *VerifierService) RunVerifier(ctx context.Context, job config.JobConfig) (VerifyReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.VerifierService.RunVerifier")
	defer span.End()

	report := VerifyReport{Job: job.Name}

	if job.Mode.MinDailyQuota > 0 {
		remaining, known := s.quota.DailyRemaining()
		if known && remaining < job.Mode.MinDailyQuota {
			report.QuotaGuarded = true
			s.logger.InfoContext(ctx, "verifier skipped under quota guard",
				"job", job.Name, "daily_remaining", remaining, "min_daily_quota", job.Mode.MinDailyQuota)
			return report, nil
		}
	}

	cooldown := job.Mode.CooldownMinutes
	if cooldown <= 0 {
		cooldown = defaultVerifyCooldownMinutes
	}
	maxAttempts := job.Mode.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultVerifyMaxAttempts
	}
	limit := job.Mode.MaxFixturesPerRun
	if limit <= 0 {
		limit = defaultVerifyLimit
	}

	now := s.now().UTC()
	candidates, err := s.fixtureRepo.ListNeedingVerification(ctx,
		now.Add(-time.Duration(cooldown)*time.Minute), maxAttempts, limit)
	if err != nil {
		return report, fmt.Errorf("list fixtures needing verification: %w", err)
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	byID := make(map[int64]fixture.Fixture, len(candidates))
	ids := make([]int64, len(candidates))
	for i, f := range candidates {
		ids[i] = f.ID
		byID[f.ID] = f
	}

	entries, calls, fetchErr := s.ingest.fetchFixturesByIDs(ctx, ids)
	report.Calls = calls
	if fetchErr != nil && abortingError(fetchErr) {
		return report, fetchErr
	}

	returned := make(map[int64]string, len(entries))
	for _, entry := range entries {
		returned[entry.Fixture.ID] = entry.Fixture.Status.Short
	}

	if len(entries) > 0 {
		if _, err := s.ingest.ApplyFixtureEntries(ctx, entries); err != nil {
			return report, err
		}
		for id, status := range returned {
			if !fixture.IsTerminalStatus(status) {
				// The provider says the match is not settled after all
				// (rescheduled or back in play); keep the flag so the next
				// sweep picks it up once it finishes.
				if err := s.fixtureRepo.SetVerification(ctx, id, fixture.VerificationPending, true, now); err != nil {
					return report, fmt.Errorf("record verification attempt for fixture %d: %w", id, err)
				}
				report.Retried++
				continue
			}
			if err := s.fixtureRepo.SetVerification(ctx, id, fixture.VerificationVerified, false, now); err != nil {
				return report, fmt.Errorf("mark fixture %d verified: %w", id, err)
			}
			report.Verified++
		}
	}

	for _, id := range ids {
		if _, ok := returned[id]; ok {
			continue
		}
		state := fixture.VerificationPending
		needs := true
		switch {
		case fetchErr == nil:
			state = fixture.VerificationNotFound
			needs = false
		case byID[id].VerificationAttemptCount+1 >= maxAttempts:
			state = fixture.VerificationBlocked
			needs = false
		}
		if err := s.fixtureRepo.SetVerification(ctx, id, state, needs, now); err != nil {
			return report, fmt.Errorf("record verification attempt for fixture %d: %w", id, err)
		}
		switch state {
		case fixture.VerificationNotFound:
			report.NotFound++
		case fixture.VerificationBlocked:
			report.Blocked++
		default:
			report.Retried++
		}
	}

	if fetchErr != nil {
		return report, fetchErr
	}
	return report, nil
}
