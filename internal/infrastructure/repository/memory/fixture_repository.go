package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matchwatch/pipeline/internal/domain/fixture"
)

type FixtureRepository struct {
	mu       sync.RWMutex
	fixtures map[int64]fixture.Fixture
	// events[fixtureID][eventKey], stats/lineups[fixtureID][teamID],
	// players[fixtureID][playerID]; same conflict targets as the tables.
	events  map[int64]map[string]fixture.Event
	stats   map[int64]map[int64]fixture.Statistics
	lineups map[int64]map[int64]fixture.Lineup
	players map[int64]map[int64]fixture.PlayerEntry
}

func NewFixtureRepository() *FixtureRepository {
	return &FixtureRepository{
		fixtures: make(map[int64]fixture.Fixture),
		events:   make(map[int64]map[string]fixture.Event),
		stats:    make(map[int64]map[int64]fixture.Statistics),
		lineups:  make(map[int64]map[int64]fixture.Lineup),
		players:  make(map[int64]map[int64]fixture.PlayerEntry),
	}
}

// Upsert applies the same merge the fixtures table enforces: a stored
// terminal status survives a stale NS/TBD envelope together with its score
// columns, and a genuine terminal envelope clears a pending verification.
func (r *FixtureRepository) Upsert(_ context.Context, f fixture.Fixture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.StatusShort = fixture.NormalizeStatus(f.StatusShort)

	stored, exists := r.fixtures[f.ID]
	if !exists {
		r.fixtures[f.ID] = f
		return nil
	}

	next := f
	if fixture.MergeStatus(stored.StatusShort, f.StatusShort) == stored.StatusShort && stored.StatusShort != f.StatusShort {
		next.StatusShort = stored.StatusShort
		next.StatusLong = stored.StatusLong
		next.Elapsed = stored.Elapsed
		next.GoalsHome = stored.GoalsHome
		next.GoalsAway = stored.GoalsAway
		next.ScoreJSON = stored.ScoreJSON
	}

	next.NeedsScoreVerification = stored.NeedsScoreVerification
	next.VerificationState = stored.VerificationState
	next.VerificationAttemptCount = stored.VerificationAttemptCount
	next.VerificationLastAttemptAt = stored.VerificationLastAttemptAt
	if stored.NeedsScoreVerification && fixture.IsTerminalStatus(f.StatusShort) {
		next.NeedsScoreVerification = false
		next.VerificationState = fixture.VerificationVerified
	}

	r.fixtures[f.ID] = next
	return nil
}

func (r *FixtureRepository) GetByID(_ context.Context, id int64) (fixture.Fixture, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fixtures[id]
	if !ok {
		return fixture.Fixture{}, false, nil
	}

	return f, true, nil
}

func (r *FixtureRepository) UpsertEvents(_ context.Context, events []fixture.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range events {
		byKey, ok := r.events[item.FixtureID]
		if !ok {
			byKey = make(map[string]fixture.Event)
			r.events[item.FixtureID] = byKey
		}
		byKey[item.EventKey] = item
	}

	return nil
}

func (r *FixtureRepository) UpsertStatistics(_ context.Context, stats []fixture.Statistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range stats {
		byTeam, ok := r.stats[item.FixtureID]
		if !ok {
			byTeam = make(map[int64]fixture.Statistics)
			r.stats[item.FixtureID] = byTeam
		}
		byTeam[item.TeamID] = item
	}

	return nil
}

func (r *FixtureRepository) UpsertLineups(_ context.Context, lineups []fixture.Lineup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range lineups {
		byTeam, ok := r.lineups[item.FixtureID]
		if !ok {
			byTeam = make(map[int64]fixture.Lineup)
			r.lineups[item.FixtureID] = byTeam
		}
		byTeam[item.TeamID] = item
	}

	return nil
}

func (r *FixtureRepository) UpsertPlayerEntries(_ context.Context, entries []fixture.PlayerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range entries {
		byPlayer, ok := r.players[item.FixtureID]
		if !ok {
			byPlayer = make(map[int64]fixture.PlayerEntry)
			r.players[item.FixtureID] = byPlayer
		}
		byPlayer[item.PlayerID] = item
	}

	return nil
}

func (r *FixtureRepository) ListAutoFinishCandidates(_ context.Context, statuses []string, kickoffBefore, updatedBefore time.Time, leagueIDs []int64, limit int) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := stringSet(statuses)
	leagues := int64Set(leagueIDs)

	var out []fixture.Fixture
	for _, f := range r.fixtures {
		if !wanted[f.StatusShort] {
			continue
		}
		if !f.KickoffAt.Before(kickoffBefore) || !f.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if len(leagues) > 0 && !leagues[f.LeagueID] {
			continue
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].ID < out[j].ID
	})
	return clampFixtures(out, limit), nil
}

func (r *FixtureRepository) ListStaleLive(_ context.Context, updatedBefore time.Time, leagueIDs []int64, limit int) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	leagues := int64Set(leagueIDs)

	var out []fixture.Fixture
	for _, f := range r.fixtures {
		if !fixture.IsLiveStatus(f.StatusShort) {
			continue
		}
		if !f.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if len(leagues) > 0 && !leagues[f.LeagueID] {
			continue
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return clampFixtures(out, limit), nil
}

func (r *FixtureRepository) ListNeedingVerification(_ context.Context, attemptBefore time.Time, maxAttempts, limit int) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []fixture.Fixture
	for _, f := range r.fixtures {
		if !f.NeedsScoreVerification {
			continue
		}
		if f.VerificationState != fixture.VerificationPending && f.VerificationState != fixture.VerificationBlocked {
			continue
		}
		if f.VerificationAttemptCount >= maxAttempts {
			continue
		}
		if f.VerificationLastAttemptAt != nil && !f.VerificationLastAttemptAt.Before(attemptBefore) {
			continue
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].ID < out[j].ID
	})
	return clampFixtures(out, limit), nil
}

func (r *FixtureRepository) ForceFinish(_ context.Context, ids []int64, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := 0
	for _, id := range ids {
		f, ok := r.fixtures[id]
		if !ok || fixture.IsTerminalStatus(f.StatusShort) {
			continue
		}
		f.StatusShort = fixture.StatusFullTime
		f.StatusLong = "Match Finished"
		f.NeedsScoreVerification = true
		f.VerificationState = fixture.VerificationPending
		f.UpdatedAt = at
		r.fixtures[id] = f
		finished++
	}

	return finished, nil
}

func (r *FixtureRepository) SetVerification(_ context.Context, id int64, state string, needsVerification bool, attemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.fixtures[id]
	if !ok {
		return fmt.Errorf("fixture id=%d not found", id)
	}
	if !fixture.CanTransitionVerification(f.VerificationState, state) {
		return fmt.Errorf("verification transition %s -> %s not allowed for fixture id=%d", f.VerificationState, state, id)
	}

	f.VerificationState = state
	f.NeedsScoreVerification = needsVerification
	f.VerificationAttemptCount++
	f.VerificationLastAttemptAt = &attemptAt
	f.UpdatedAt = attemptAt
	r.fixtures[id] = f

	return nil
}

func (r *FixtureRepository) ListInWindow(_ context.Context, leagueID int64, season int, from, to time.Time, limit int) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []fixture.Fixture
	for _, f := range r.fixtures {
		if f.LeagueID != leagueID || f.Season != season {
			continue
		}
		if f.KickoffAt.Before(from) || !f.KickoffAt.Before(to) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].ID < out[j].ID
	})

	return clampFixtures(out, limit), nil
}

func (r *FixtureRepository) CountInWindow(_ context.Context, leagueID int64, season int, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, f := range r.fixtures {
		if f.LeagueID != leagueID || f.Season != season {
			continue
		}
		if f.KickoffAt.Before(from) || !f.KickoffAt.Before(to) {
			continue
		}
		count++
	}

	return count, nil
}

func (r *FixtureRepository) CountUpdatedSince(_ context.Context, leagueID int64, season int, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, f := range r.fixtures {
		if f.LeagueID != leagueID || f.Season != season {
			continue
		}
		if f.UpdatedAt.Before(since) {
			continue
		}
		count++
	}

	return count, nil
}

func (r *FixtureRepository) MaxUpdatedAt(_ context.Context, leagueID int64, season int) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max time.Time
	found := false
	for _, f := range r.fixtures {
		if f.LeagueID != leagueID || f.Season != season {
			continue
		}
		if !found || f.UpdatedAt.After(max) {
			max = f.UpdatedAt
			found = true
		}
	}

	return max, found, nil
}

// EventsFor returns the stored timeline for assertions.
func (r *FixtureRepository) EventsFor(fixtureID int64) []fixture.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKey := r.events[fixtureID]
	out := make([]fixture.Event, 0, len(byKey))
	for _, item := range byKey {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventKey < out[j].EventKey })

	return out
}

func (r *FixtureRepository) StatisticsFor(fixtureID int64) []fixture.Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byTeam := r.stats[fixtureID]
	out := make([]fixture.Statistics, 0, len(byTeam))
	for _, item := range byTeam {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })

	return out
}

func (r *FixtureRepository) LineupsFor(fixtureID int64) []fixture.Lineup {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byTeam := r.lineups[fixtureID]
	out := make([]fixture.Lineup, 0, len(byTeam))
	for _, item := range byTeam {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })

	return out
}

func (r *FixtureRepository) PlayerEntriesFor(fixtureID int64) []fixture.PlayerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPlayer := r.players[fixtureID]
	out := make([]fixture.PlayerEntry, 0, len(byPlayer))
	for _, item := range byPlayer {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })

	return out
}

func clampFixtures(items []fixture.Fixture, limit int) []fixture.Fixture {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func int64Set(values []int64) map[int64]bool {
	set := make(map[int64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
