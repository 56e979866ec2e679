package injury

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Injury is one reported absence. The provider assigns no id, so identity
// is a deterministic hash of the natural tuple.
type Injury struct {
	LeagueID   int64
	Season     int
	InjuryKey  string
	FixtureID  *int64
	TeamID     int64
	PlayerID   int64
	PlayerName string
	Type       string
	Reason     string
	Date       time.Time
	UpdatedAt  time.Time
}

// Key hashes (team, player, type, reason, date) into the stable identity
// used for idempotent replays. The date collapses to its UTC calendar day;
// a zero date hashes as an empty segment, so payloads that carry no fixture
// date keep the same identity no matter when they are ingested.
func Key(teamID, playerID int64, injuryType, reason string, date time.Time) string {
	day := ""
	if !date.IsZero() {
		day = date.UTC().Format("2006-01-02")
	}
	segments := []string{
		strconv.FormatInt(teamID, 10),
		strconv.FormatInt(playerID, 10),
		sanitizeSegment(injuryType),
		sanitizeSegment(reason),
		day,
	}
	sum := sha256.Sum256([]byte(strings.Join(segments, "|")))
	return hex.EncodeToString(sum[:])[:32]
}

func sanitizeSegment(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "|", "/")
}
