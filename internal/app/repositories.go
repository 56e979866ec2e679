package app

import (
	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/catalog"
	"github.com/matchwatch/pipeline/internal/domain/coverage"
	"github.com/matchwatch/pipeline/internal/domain/fixture"
	"github.com/matchwatch/pipeline/internal/domain/injury"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	"github.com/matchwatch/pipeline/internal/domain/standings"
	"github.com/matchwatch/pipeline/internal/domain/team"
	"github.com/matchwatch/pipeline/internal/domain/teamstats"
	"github.com/matchwatch/pipeline/internal/domain/topscorers"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
	"github.com/matchwatch/pipeline/internal/infrastructure/repository/memory"
	"github.com/matchwatch/pipeline/internal/infrastructure/repository/postgres"
)

// Repositories bundles one implementation of every store the pipeline
// writes or reads.
type Repositories struct {
	Catalog    catalog.Repository
	League     league.Repository
	Team       team.Repository
	Fixture    fixture.Repository
	Standings  standings.Repository
	Injury     injury.Repository
	TopScorers topscorers.Repository
	TeamStats  teamstats.Repository
	Coverage   coverage.Repository
	Tracking   tracking.Repository
	RawData    rawdata.Repository
}

func newPostgresRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Catalog:    postgres.NewCatalogRepository(db),
		League:     postgres.NewLeagueRepository(db),
		Team:       postgres.NewTeamRepository(db),
		Fixture:    postgres.NewFixtureRepository(db),
		Standings:  postgres.NewStandingsRepository(db),
		Injury:     postgres.NewInjuryRepository(db),
		TopScorers: postgres.NewTopScorersRepository(db),
		TeamStats:  postgres.NewTeamStatsRepository(db),
		Coverage:   postgres.NewCoverageRepository(db),
		Tracking:   postgres.NewTrackingRepository(db),
		RawData:    postgres.NewRawDataRepository(db),
	}
}

// newMemoryRepositories backs the whole pipeline with in-process stores.
// Used when database.url is empty: dev runs and the test suite.
func newMemoryRepositories() Repositories {
	return Repositories{
		Catalog:    memory.NewCatalogRepository(),
		League:     memory.NewLeagueRepository(),
		Team:       memory.NewTeamRepository(),
		Fixture:    memory.NewFixtureRepository(),
		Standings:  memory.NewStandingsRepository(),
		Injury:     memory.NewInjuryRepository(),
		TopScorers: memory.NewTopScorersRepository(),
		TeamStats:  memory.NewTeamStatsRepository(),
		Coverage:   memory.NewCoverageRepository(),
		Tracking:   memory.NewTrackingRepository(),
		RawData:    memory.NewRawDataRepository(),
	}
}
