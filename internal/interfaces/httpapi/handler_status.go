package httpapi

import (
	"net/http"

	"github.com/matchwatch/pipeline/internal/scheduler"
)

type statusDTO struct {
	Jobs       []scheduler.JobStatus `json:"jobs"`
	RecentRuns []scheduler.RunRecord `json:"recent_runs"`
}

type recentRunsQuery struct {
	Limit int64 `validate:"gte=0,lte=500"`
}

// GetStatus reports every scheduled job's trigger state plus the newest
// run journal entries.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStatus")
	defer span.End()

	query := recentRunsQuery{Limit: 20}
	if err := h.bindQuery(r.URL.Query(), &query, map[string]*int64{"limit": &query.Limit}); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, statusDTO{
		Jobs:       h.sched.Jobs(),
		RecentRuns: h.sched.Journal().Recent(int(query.Limit)),
	})
}

// GetQuota reports the governor snapshot: bucket level, observed caps, and
// whether the emergency stop currently holds.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetQuota")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, h.quota.Snapshot())
}
