package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/matchwatch/pipeline/internal/domain/coverage"
	"github.com/matchwatch/pipeline/internal/domain/rawdata"
	"github.com/matchwatch/pipeline/internal/domain/tracking"
	"github.com/matchwatch/pipeline/internal/infrastructure/repository/memory"
	"github.com/matchwatch/pipeline/internal/platform/ratelimit"
	"github.com/matchwatch/pipeline/internal/scheduler"
)

type fakeScheduler struct {
	jobs    []scheduler.JobStatus
	journal *scheduler.Journal
}

func (f *fakeScheduler) Jobs() []scheduler.JobStatus { return f.jobs }
func (f *fakeScheduler) Journal() *scheduler.Journal { return f.journal }

type fakeBackfill struct {
	status map[string][]tracking.BackfillProgress
}

func (f *fakeBackfill) Status(context.Context) (map[string][]tracking.BackfillProgress, error) {
	return f.status, nil
}

func newTestRouter(t *testing.T, token string) (http.Handler, *memory.CoverageRepository, *memory.RawDataRepository) {
	t.Helper()

	journal := scheduler.NewJournal(10, nil)
	journal.Record(scheduler.RunRecord{Job: "daily_fixtures", Group: "daily", Outcome: "ok"})

	sched := &fakeScheduler{
		jobs: []scheduler.JobStatus{
			{Name: "daily_fixtures", Group: "daily", Trigger: "cron 0 * * * *"},
		},
		journal: journal,
	}
	governor := ratelimit.NewGovernor(ratelimit.Config{PerMinute: 300, DailyLimit: 75000, EmergencyStopThreshold: 7500})
	coverageRepo := memory.NewCoverageRepository()
	rawRepo := memory.NewRawDataRepository()
	backfill := &fakeBackfill{status: map[string][]tracking.BackfillProgress{
		"backfill_fixtures": {{JobID: "backfill_fixtures", LeagueID: 39, Season: 2024, NextWindowIndex: 3}},
	}}

	handler := NewHandler(sched, governor, backfill, coverageRepo, rawRepo, nil)
	return NewRouter(handler, token, nil), coverageRepo, rawRepo
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetStatus(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	jobs, ok := data["jobs"].([]any)
	if !ok || len(jobs) != 1 {
		t.Fatalf("expected one job, got %v", data["jobs"])
	}
	runs, ok := data["recent_runs"].([]any)
	if !ok || len(runs) != 1 {
		t.Fatalf("expected one journal entry, got %v", data["recent_runs"])
	}
}

func TestGetQuota(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	if got, _ := data["daily_remaining"].(float64); got != 75000 {
		t.Fatalf("expected daily_remaining=75000, got %v", data["daily_remaining"])
	}
}

func TestListCoverage_FiltersByLeague(t *testing.T) {
	router, coverageRepo, _ := newTestRouter(t, "")

	ctx := context.Background()
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	for _, leagueID := range []int64{39, 140} {
		if err := coverageRepo.Replace(ctx, coverage.Status{
			LeagueID: leagueID, Season: 2024, Endpoint: "fixtures", Overall: 90, ComputedAt: now,
		}); err != nil {
			t.Fatalf("seed coverage: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/coverage?league=39", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	rows, ok := body["data"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one coverage row, got %v", body["data"])
	}
}

func TestListCoverage_RejectsMalformedQuery(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/coverage?league=premier", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListRecentErrors(t *testing.T) {
	router, _, rawRepo := newTestRouter(t, "")

	ctx := context.Background()
	if _, err := rawRepo.Append(ctx, rawdata.Record{
		Endpoint: "fixtures", StatusCode: 200, Outcome: rawdata.OutcomeOK, FetchedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed raw row: %v", err)
	}
	if _, err := rawRepo.Append(ctx, rawdata.Record{
		Endpoint: "standings", StatusCode: 429, Outcome: rawdata.OutcomeRateLimited, FetchedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed raw row: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/errors/recent", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	rows, ok := body["data"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one error row, got %v", body["data"])
	}
}

func TestRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t, "operator-secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer operator-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestMutatingVerbsNotRouted(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/v1/coverage", nil))
		if rec.Code != http.StatusMethodNotAllowed && rec.Code != http.StatusNotFound {
			t.Fatalf("expected %s to be unrouted, got %d", method, rec.Code)
		}
	}
}
