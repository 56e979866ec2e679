package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/matchwatch/pipeline/internal/domain/coverage"
	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
	"github.com/matchwatch/pipeline/internal/platform/ratelimit"
	"github.com/matchwatch/pipeline/internal/scheduler"
	"github.com/matchwatch/pipeline/internal/usecase"
)

// SchedulerInfo is the slice of the scheduler the operator channel reads.
type SchedulerInfo interface {
	Jobs() []scheduler.JobStatus
	Journal() *scheduler.Journal
}

// QuotaSnapshotter reports the governor's point-in-time usage.
type QuotaSnapshotter interface {
	Snapshot() ratelimit.Usage
}

// BackfillStatus reports progress rows per configured backfill job.
type BackfillStatus interface {
	Status(ctx context.Context) (map[string][]tracking.BackfillProgress, error)
}

// Handler serves the read-only operator channel. It never mutates state:
// every route is a GET over the scheduler, the governor, and the store.
type Handler struct {
	sched        SchedulerInfo
	quota        QuotaSnapshotter
	backfill     BackfillStatus
	coverageRepo coverage.Repository
	rawRepo      rawdata.Repository
	logger       *slog.Logger
	validator    *validator.Validate
}

func NewHandler(
	sched SchedulerInfo,
	quota QuotaSnapshotter,
	backfill BackfillStatus,
	coverageRepo coverage.Repository,
	rawRepo rawdata.Repository,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		sched:        sched,
		quota:        quota,
		backfill:     backfill,
		coverageRepo: coverageRepo,
		rawRepo:      rawRepo,
		logger:       logger,
		validator:    validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// bindQuery decodes integer query params into target and runs its validate
// tags. Unknown params are ignored; malformed numbers are invalid input.
func (h *Handler) bindQuery(values url.Values, target any, fields map[string]*int64) error {
	for name, dst := range fields {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: query param %s must be an integer", usecase.ErrInvalidInput, name)
		}
		*dst = parsed
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}
