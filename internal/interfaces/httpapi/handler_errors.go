package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

type rawErrorDTO struct {
	ID         int64           `json:"id"`
	Endpoint   string          `json:"endpoint"`
	Params     string          `json:"params"`
	StatusCode int             `json:"status_code"`
	Outcome    string          `json:"outcome"`
	Errors     json.RawMessage `json:"errors,omitempty"`
	Results    int             `json:"results"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// ListRecentErrors surfaces the newest archived calls that did not come
// back clean, straight from the RAW archive.
func (h *Handler) ListRecentErrors(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListRecentErrors")
	defer span.End()

	query := recentRunsQuery{Limit: 50}
	if err := h.bindQuery(r.URL.Query(), &query, map[string]*int64{"limit": &query.Limit}); err != nil {
		writeError(ctx, w, err)
		return
	}

	rows, err := h.rawRepo.ListRecentErrors(ctx, int(query.Limit))
	if err != nil {
		h.logger.ErrorContext(ctx, "list recent raw errors failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]rawErrorDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, rawErrorDTO{
			ID:         row.ID,
			Endpoint:   row.Endpoint,
			Params:     row.Params,
			StatusCode: row.StatusCode,
			Outcome:    row.Outcome,
			Errors:     json.RawMessage(row.ErrorsJSON),
			Results:    row.Results,
			FetchedAt:  row.FetchedAt,
		})
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}
