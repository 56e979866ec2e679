package fixture

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Short status codes as the provider emits them. Unknown codes are stored
// verbatim; the helpers below only classify the ones the pipeline reacts to.
const (
	StatusNotStarted   = "NS"
	StatusToBeDefined  = "TBD"
	StatusFirstHalf    = "1H"
	StatusHalfTime     = "HT"
	StatusSecondHalf   = "2H"
	StatusExtraTime    = "ET"
	StatusBreakTime    = "BT"
	StatusPenaltyLive  = "P"
	StatusSuspended    = "SUSP"
	StatusInterrupted  = "INT"
	StatusLive         = "LIVE"
	StatusFullTime     = "FT"
	StatusAfterExtra   = "AET"
	StatusPenaltiesEnd = "PEN"
	StatusPostponed    = "PST"
	StatusCancelled    = "CANC"
	StatusAbandoned    = "ABD"
	StatusTechLoss     = "AWD"
	StatusWalkover     = "WO"
)

// Verification states for auto-finished fixtures. Transitions are monotone:
// pending may move to verified or not_found, both of which are terminal;
// blocked marks fixtures the verifier has given up on until quota returns.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationNotFound = "not_found"
	VerificationBlocked  = "blocked"
)

// Fixture is one scheduled, live, or completed match.
type Fixture struct {
	ID          int64
	LeagueID    int64
	Season      int
	KickoffAt   time.Time
	VenueID     *int64
	Referee     string
	Round       string
	StatusShort string
	StatusLong  string
	Elapsed     *int
	HomeTeamID  int64
	AwayTeamID  int64
	GoalsHome   *int
	GoalsAway   *int
	ScoreJSON   []byte

	NeedsScoreVerification    bool
	VerificationState         string
	VerificationAttemptCount  int
	VerificationLastAttemptAt *time.Time

	UpdatedAt time.Time
}

// Event is one timeline entry, identified by a deterministic key so replays
// of the same envelope never duplicate rows.
type Event struct {
	FixtureID int64
	EventKey  string
	Minute    int
	Extra     *int
	TeamID    int64
	PlayerID  *int64
	AssistID  *int64
	Type      string
	Detail    string
	Comments  string
	UpdatedAt time.Time
}

// Statistics holds one team's per-match stats as an opaque blob.
type Statistics struct {
	FixtureID int64
	TeamID    int64
	StatsJSON []byte
	UpdatedAt time.Time
}

// Lineup holds one team's formation and squad sheets for a match.
type Lineup struct {
	FixtureID       int64
	TeamID          int64
	Formation       string
	CoachID         *int64
	CoachName       string
	StartXIJSON     []byte
	SubstitutesJSON []byte
	ColorsJSON      []byte
	UpdatedAt       time.Time
}

// PlayerEntry holds one player's per-match stats as an opaque blob.
type PlayerEntry struct {
	FixtureID int64
	TeamID    int64
	PlayerID  int64
	StatsJSON []byte
	UpdatedAt time.Time
}

func NormalizeStatus(value string) string {
	status := strings.ToUpper(strings.TrimSpace(value))
	if status == "" {
		return StatusNotStarted
	}
	return status
}

// LiveStatuses lists every in-play or interrupted short code.
func LiveStatuses() []string {
	return []string{
		StatusFirstHalf, StatusHalfTime, StatusSecondHalf, StatusExtraTime,
		StatusBreakTime, StatusPenaltyLive, StatusSuspended, StatusInterrupted,
		StatusLive,
	}
}

// SchedulableStatuses lists codes for matches that have not kicked off.
func SchedulableStatuses() []string {
	return []string{StatusNotStarted, StatusToBeDefined}
}

// TerminalStatuses lists codes that must never regress to NS/TBD.
func TerminalStatuses() []string {
	return []string{
		StatusFullTime, StatusAfterExtra, StatusPenaltiesEnd,
		StatusPostponed, StatusCancelled, StatusAbandoned,
		StatusTechLoss, StatusWalkover,
	}
}

func IsLiveStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusFirstHalf, StatusHalfTime, StatusSecondHalf, StatusExtraTime,
		StatusBreakTime, StatusPenaltyLive, StatusSuspended, StatusInterrupted,
		StatusLive:
		return true
	default:
		return false
	}
}

func IsFinishedStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusFullTime, StatusAfterExtra, StatusPenaltiesEnd:
		return true
	default:
		return false
	}
}

func IsCancelledLikeStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusPostponed, StatusCancelled, StatusAbandoned, StatusTechLoss, StatusWalkover:
		return true
	default:
		return false
	}
}

func IsSchedulableStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusNotStarted, StatusToBeDefined:
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether a status must never regress to NS/TBD.
func IsTerminalStatus(status string) bool {
	return IsFinishedStatus(status) || IsCancelledLikeStatus(status)
}

// MergeStatus decides which short status an upsert keeps. A terminal stored
// status wins over a stale NS/TBD from a late or replayed envelope; score
// corrections still apply on top of the kept status.
func MergeStatus(stored, incoming string) string {
	stored = NormalizeStatus(stored)
	incoming = NormalizeStatus(incoming)

	if IsTerminalStatus(stored) && IsSchedulableStatus(incoming) {
		return stored
	}
	return incoming
}

// CanTransitionVerification enforces the monotone verification machine.
func CanTransitionVerification(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case "", VerificationPending:
		return to == VerificationVerified || to == VerificationNotFound ||
			to == VerificationBlocked || to == VerificationPending
	case VerificationBlocked:
		return to == VerificationVerified || to == VerificationNotFound
	default:
		// verified and not_found are terminal.
		return false
	}
}

// EventKey derives the deterministic identity of a timeline entry from its
// natural tuple. Replaying an envelope reproduces identical keys.
func EventKey(minute int, extra *int, teamID int64, playerID *int64, eventType, detail string) string {
	segments := []string{
		strconv.Itoa(minute),
		intPtrSegment(extra),
		strconv.FormatInt(teamID, 10),
		int64PtrSegment(playerID),
		sanitizeKeySegment(eventType),
		sanitizeKeySegment(detail),
	}
	return hashKeySegments(segments)
}

func intPtrSegment(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func int64PtrSegment(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func sanitizeKeySegment(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "|", "/")
}

func hashKeySegments(segments []string) string {
	sum := sha256.Sum256([]byte(strings.Join(segments, "|")))
	return hex.EncodeToString(sum[:])[:32]
}
