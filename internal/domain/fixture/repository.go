package fixture

import (
	"context"
	"time"
)

// Repository persists fixtures and their per-match facets. Upsert semantics
// are idempotent: replaying the same envelope leaves rows unchanged.
type Repository interface {
	// Upsert writes one fixture by id, applying MergeStatus against any
	// stored row so terminal statuses never regress to NS/TBD.
	Upsert(ctx context.Context, f Fixture) error
	GetByID(ctx context.Context, id int64) (Fixture, bool, error)

	// UpsertEvents writes timeline entries keyed by (fixture_id, event_key).
	UpsertEvents(ctx context.Context, events []Event) error
	// UpsertStatistics writes per-match team stats keyed by (fixture_id, team_id).
	UpsertStatistics(ctx context.Context, stats []Statistics) error
	// UpsertLineups writes squad sheets keyed by (fixture_id, team_id).
	UpsertLineups(ctx context.Context, lineups []Lineup) error
	// UpsertPlayerEntries writes per-match player stats keyed by
	// (fixture_id, team_id, player_id).
	UpsertPlayerEntries(ctx context.Context, entries []PlayerEntry) error

	// ListAutoFinishCandidates selects fixtures in the given statuses whose
	// kickoff and last update both precede the supplied cutoffs.
	ListAutoFinishCandidates(ctx context.Context, statuses []string, kickoffBefore, updatedBefore time.Time, leagueIDs []int64, limit int) ([]Fixture, error)
	// ListStaleLive selects live-status fixtures not updated since the cutoff.
	ListStaleLive(ctx context.Context, updatedBefore time.Time, leagueIDs []int64, limit int) ([]Fixture, error)
	// ListNeedingVerification selects flagged fixtures whose last attempt is
	// older than the cooldown cutoff and below the attempt cap.
	ListNeedingVerification(ctx context.Context, attemptBefore time.Time, maxAttempts, limit int) ([]Fixture, error)

	// ForceFinish sets the given fixtures to FT and flags them for score
	// verification in one transaction, without touching goals.
	ForceFinish(ctx context.Context, ids []int64, at time.Time) (int, error)
	// SetVerification records one verifier outcome; implementations reject
	// transitions CanTransitionVerification forbids.
	SetVerification(ctx context.Context, id int64, state string, needsVerification bool, attemptAt time.Time) error

	// ListInWindow returns fixtures for a tracked pair with kickoff inside
	// [from, to), ordered by kickoff; the detail fan-out walks it.
	ListInWindow(ctx context.Context, leagueID int64, season int, from, to time.Time, limit int) ([]Fixture, error)
	// CountInWindow counts fixtures for a tracked pair with kickoff inside
	// [from, to); coverage uses it to detect empty calendars.
	CountInWindow(ctx context.Context, leagueID int64, season int, from, to time.Time) (int, error)
	// CountUpdatedSince counts rows touched after the cutoff for a pair.
	CountUpdatedSince(ctx context.Context, leagueID int64, season int, since time.Time) (int, error)
	// MaxUpdatedAt reports the newest update instant for a pair.
	MaxUpdatedAt(ctx context.Context, leagueID int64, season int) (time.Time, bool, error)
}
