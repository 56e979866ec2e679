package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	qb "github.com/matchwatch/pipeline/internal/platform/querybuilder"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// countUpdatedSince implements the freshness counter shared by every entity
// table keyed on (league_id, season, updated_at).
func countUpdatedSince(ctx context.Context, db *sqlx.DB, table string, leagueID int64, season int, since time.Time) (int, error) {
	query, args, err := qb.Select("COUNT(*)").From(table).
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
			qb.Expr("updated_at >= ?", since.UTC()),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count updated since query for %s: %w", table, err)
	}

	var count int
	if err := db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count %s updated since: %w", table, err)
	}
	return count, nil
}

func maxUpdatedAt(ctx context.Context, db *sqlx.DB, table string, leagueID int64, season int) (time.Time, bool, error) {
	query, args, err := qb.Select("MAX(updated_at)").From(table).
		Where(
			qb.Eq("league_id", leagueID),
			qb.Eq("season", season),
		).
		ToSQL()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build max updated at query for %s: %w", table, err)
	}

	var max sql.NullTime
	if err := db.GetContext(ctx, &max, query, args...); err != nil {
		return time.Time{}, false, fmt.Errorf("select max %s updated at: %w", table, err)
	}
	if !max.Valid {
		return time.Time{}, false, nil
	}
	return max.Time.UTC(), true, nil
}

func int64sToAny(values []int64) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func nullableInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullIntPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}

func nullInt64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time.UTC()
	return &v
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullFloatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

// emptyJSONWhenNil keeps jsonb columns non-null so downstream readers never
// branch on NULL blobs.
func emptyJSONWhenNil(value []byte) []byte {
	if len(value) == 0 {
		return []byte("{}")
	}
	return value
}
