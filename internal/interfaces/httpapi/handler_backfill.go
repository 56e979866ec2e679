package httpapi

import (
	"net/http"
	"time"
)

type backfillTaskDTO struct {
	LeagueID        int64      `json:"league_id"`
	Season          int        `json:"season"`
	NextWindowIndex int        `json:"next_window_index"`
	Completed       bool       `json:"completed"`
	LastError       string     `json:"last_error,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

// ListBackfill reports per-(league, season) cursor state for every
// configured backfill job.
func (h *Handler) ListBackfill(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListBackfill")
	defer span.End()

	status, err := h.backfill.Status(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list backfill progress failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make(map[string][]backfillTaskDTO, len(status))
	for job, tasks := range status {
		dtos := make([]backfillTaskDTO, 0, len(tasks))
		for _, task := range tasks {
			dtos = append(dtos, backfillTaskDTO{
				LeagueID:        task.LeagueID,
				Season:          task.Season,
				NextWindowIndex: task.NextWindowIndex,
				Completed:       task.Completed,
				LastError:       task.LastError,
				LastRunAt:       task.LastRunAt,
			})
		}
		out[job] = dtos
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}
