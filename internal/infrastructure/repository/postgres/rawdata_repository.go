package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

type RawDataRepository struct {
	db *sqlx.DB
}

func NewRawDataRepository(db *sqlx.DB) *RawDataRepository {
	return &RawDataRepository{db: db}
}

type rawRecordModel struct {
	ID          int64         `db:"id"`
	Endpoint    string        `db:"endpoint"`
	Params      string        `db:"params"`
	LeagueID    sql.NullInt64 `db:"league_id"`
	Season      sql.NullInt64 `db:"season"`
	StatusCode  int           `db:"status_code"`
	HeadersJSON []byte        `db:"headers_json"`
	Body        []byte        `db:"body"`
	ErrorsJSON  []byte        `db:"errors_json"`
	Results     int           `db:"results"`
	Outcome     string        `db:"outcome"`
	FetchedAt   time.Time     `db:"fetched_at"`
}

func (m rawRecordModel) toDomain() rawdata.Record {
	return rawdata.Record{
		ID:          m.ID,
		Endpoint:    m.Endpoint,
		Params:      m.Params,
		LeagueID:    nullInt64Ptr(m.LeagueID),
		Season:      nullIntPtr(m.Season),
		StatusCode:  m.StatusCode,
		HeadersJSON: m.HeadersJSON,
		Body:        m.Body,
		ErrorsJSON:  m.ErrorsJSON,
		Results:     m.Results,
		Outcome:     m.Outcome,
		FetchedAt:   m.FetchedAt,
	}
}

// Append inserts one archive row. No conflict clause: the archive is
// append-only and duplicate envelopes are legitimate history.
func (r *RawDataRepository) Append(ctx context.Context, rec rawdata.Record) (int64, error) {
	model := struct {
		Endpoint    string        `db:"endpoint"`
		Params      string        `db:"params"`
		LeagueID    sql.NullInt64 `db:"league_id"`
		Season      sql.NullInt64 `db:"season"`
		StatusCode  int           `db:"status_code"`
		HeadersJSON []byte        `db:"headers_json"`
		Body        []byte        `db:"body"`
		ErrorsJSON  []byte        `db:"errors_json"`
		Results     int           `db:"results"`
		Outcome     string        `db:"outcome"`
		FetchedAt   time.Time     `db:"fetched_at"`
	}{
		Endpoint:    rec.Endpoint,
		Params:      rec.Params,
		LeagueID:    nullableInt64(rec.LeagueID),
		Season:      nullableInt(rec.Season),
		StatusCode:  rec.StatusCode,
		HeadersJSON: emptyJSONWhenNil(rec.HeadersJSON),
		Body:        rec.Body,
		ErrorsJSON:  rec.ErrorsJSON,
		Results:     rec.Results,
		Outcome:     rec.Outcome,
		FetchedAt:   rec.FetchedAt.UTC(),
	}

	query, args, err := qb.InsertModel("raw_responses", model, "RETURNING id")
	if err != nil {
		return 0, fmt.Errorf("build append raw response query: %w", err)
	}

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("append raw response endpoint=%s: %w", rec.Endpoint, err)
	}
	return id, nil
}

func (r *RawDataRepository) CountRequests(ctx context.Context, endpoint string, leagueID int64, season int, since time.Time) (int, error) {
	query, args, err := qb.Select("COUNT(*)").From("raw_responses").
		Where(
			qb.Eq("endpoint", endpoint),
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
			qb.Expr("fetched_at >= ?", since.UTC()),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count raw requests query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count raw requests endpoint=%s: %w", endpoint, err)
	}
	return count, nil
}

func (r *RawDataRepository) ListRecentErrors(ctx context.Context, limit int) ([]rawdata.Record, error) {
	query, args, err := qb.Select("*").From("raw_responses").
		Where(qb.Expr("outcome <> ?", rawdata.OutcomeOK)).
		OrderBy("fetched_at DESC", "id DESC").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list recent errors query: %w", err)
	}

	var rows []rawRecordModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select recent raw errors: %w", err)
	}

	out := make([]rawdata.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
