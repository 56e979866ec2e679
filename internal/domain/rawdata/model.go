package rawdata

import "time"

// Outcome labels recorded alongside archived envelopes. They mirror the
// upstream client's classification so operators can filter the archive.
const (
	OutcomeOK            = "ok"
	OutcomeRateLimited   = "rate_limited"
	OutcomeAuthFailed    = "auth_failed"
	OutcomeClientError   = "client_error"
	OutcomeServerError   = "server_error"
	OutcomeEnvelopeError = "envelope_error"
)

// Record is one archived upstream call. The archive is append-only:
// duplicates are expected and never rejected.
type Record struct {
	ID       int64
	Endpoint string
	// Params is the canonical (sorted, redacted) query string.
	Params string
	// LeagueID/Season are derived from the request params purely for
	// indexed lookups; nil when the call was not pair-scoped.
	LeagueID    *int64
	Season      *int
	StatusCode  int
	HeadersJSON []byte
	Body        []byte
	// ErrorsJSON holds the normalised envelope errors map, nil when empty.
	ErrorsJSON []byte
	Results    int
	Outcome    string
	FetchedAt  time.Time
}
