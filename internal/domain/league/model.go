package league

import (
	"strings"
	"time"
)

// Competition types as the provider names them. Stored verbatim; scope
// decisions only care about the two known values.
const (
	TypeLeague = "League"
	TypeCup    = "Cup"
)

// League is one competition as delivered by the provider catalogue.
type League struct {
	ID          int64
	Name        string
	Type        string
	Logo        string
	CountryName string
	CountryCode string
	CountryFlag string
	// SeasonsJSON keeps the provider's seasons array (years, date ranges,
	// coverage matrix) as an opaque blob.
	SeasonsJSON []byte
	UpdatedAt   time.Time
}

// NormalizeType trims whitespace but keeps unknown values verbatim so the
// scope policy can fail open on them.
func NormalizeType(value string) string {
	return strings.TrimSpace(value)
}

func IsKnownType(value string) bool {
	switch NormalizeType(value) {
	case TypeLeague, TypeCup:
		return true
	default:
		return false
	}
}
