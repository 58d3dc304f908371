package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"stepledger/internal/core"
	"stepledger/internal/ledger"
	"stepledger/internal/log"
)

type memStore struct {
	entries []core.DayEntry
}

func (m *memStore) LoadLedger(ctx context.Context) ([]core.DayEntry, error) {
	out := make([]core.DayEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memStore) SaveLedger(ctx context.Context, entries []core.DayEntry) error {
	m.entries = make([]core.DayEntry, len(entries))
	copy(m.entries, entries)
	return nil
}

func (m *memStore) DeleteLedger(ctx context.Context) error {
	m.entries = nil
	return nil
}

type testEnv struct {
	server *Server
	svc    *ledger.Service
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := &now
	logger := log.New(log.DefaultConfig())

	svc := ledger.NewService(&memStore{}, nil, nil, logger, ledger.Config{
		DailyGoal: 10000,
		Now:       func() time.Time { return *clock },
	})
	if _, err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	server := NewServer(":0", svc, logger, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	return &testEnv{server: server, svc: svc, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(w, r)
	return w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestTodayEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/v1/steps/today", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	snapshot := decodeResponse[ledger.TodaySnapshot](t, w)
	if snapshot.Date != "2024-06-01" {
		t.Errorf("Date = %s, want 2024-06-01", snapshot.Date)
	}
	if snapshot.Steps != 0 || snapshot.Goal != 10000 {
		t.Errorf("Steps, Goal = %d, %d, want 0, 10000", snapshot.Steps, snapshot.Goal)
	}
}

func TestRecordDeltaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	for _, steps := range []string{"5", "10", "1"} {
		w := env.do(t, "POST", "/v1/steps/deltas", `{"steps": `+steps+`}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
		}
	}

	w := env.do(t, "POST", "/v1/steps/deltas", `{"steps": 0}`)
	resp := decodeResponse[deltaResponse](t, w)
	if resp.TotalSteps != 16 {
		t.Errorf("TotalSteps = %d, want 16", resp.TotalSteps)
	}
	if resp.Date != "2024-06-01" {
		t.Errorf("Date = %s, want 2024-06-01", resp.Date)
	}

	// The response carries the date the delta actually landed on, taken
	// from the same write, not from a second read that could see a roll.
	*env.clock = env.clock.Add(24 * time.Hour)
	resp = decodeResponse[deltaResponse](t, env.do(t, "POST", "/v1/steps/deltas", `{"steps": 3}`))
	if resp.Date != "2024-06-02" || resp.TotalSteps != 3 {
		t.Errorf("rolled delta = {%s %d}, want {2024-06-02 3}", resp.Date, resp.TotalSteps)
	}
}

func TestRecordDeltaValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"negative steps", `{"steps": -5}`, http.StatusUnprocessableEntity},
		{"missing steps", `{}`, http.StatusBadRequest},
		{"malformed json", `{"steps":`, http.StatusBadRequest},
		{"unknown field", `{"step_count": 5}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/v1/steps/deltas", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLifecycleEndpoint(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "POST", "/v1/steps/deltas", `{"steps": 16}`); w.Code != http.StatusOK {
		t.Fatalf("seed delta status = %d", w.Code)
	}

	// Day changes while the client was backgrounded.
	*env.clock = env.clock.Add(24 * time.Hour)
	w := env.do(t, "POST", "/v1/lifecycle", `{"state": "active"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	snapshot := decodeResponse[ledger.TodaySnapshot](t, env.do(t, "GET", "/v1/steps/today", ""))
	if snapshot.Date != "2024-06-02" || snapshot.Steps != 0 {
		t.Errorf("Today = {%s %d}, want {2024-06-02 0}", snapshot.Date, snapshot.Steps)
	}

	w = env.do(t, "POST", "/v1/lifecycle", `{"state": "hibernating"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown state status = %d, want 422", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/v1/steps/deltas", `{"steps": 16}`)
	*env.clock = env.clock.Add(24 * time.Hour)
	env.do(t, "POST", "/v1/steps/deltas", `{"steps": 20}`)

	resp := decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history", ""))
	if resp.Count != 2 {
		t.Fatalf("Count = %d, want 2", resp.Count)
	}
	if resp.Entries[0].Date != "2024-06-02" {
		t.Errorf("default order first entry = %s, want 2024-06-02", resp.Entries[0].Date)
	}

	resp = decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history?order=asc", ""))
	if resp.Entries[0].Date != "2024-06-01" {
		t.Errorf("ascending first entry = %s, want 2024-06-01", resp.Entries[0].Date)
	}

	if w := env.do(t, "GET", "/v1/steps/history?order=sideways", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid order status = %d, want 400", w.Code)
	}
}

func TestHistoryCacheInvalidatedByMutation(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/v1/steps/deltas", `{"steps": 5}`)
	first := decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history", ""))
	if first.Entries[0].Steps != 5 {
		t.Fatalf("Steps = %d, want 5", first.Entries[0].Steps)
	}

	env.do(t, "POST", "/v1/steps/deltas", `{"steps": 7}`)
	second := decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history", ""))
	if second.Entries[0].Steps != 12 {
		t.Errorf("Steps = %d after second delta, want 12", second.Entries[0].Steps)
	}
}

func TestViewCacheInvalidatedBySensorDelta(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Deltas coming off the sensor worker bypass HTTP entirely.
	if _, err := env.svc.RecordDelta(ctx, 5); err != nil {
		t.Fatalf("RecordDelta() error = %v", err)
	}
	first := decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history", ""))
	if first.Entries[0].Steps != 5 {
		t.Fatalf("Steps = %d, want 5", first.Entries[0].Steps)
	}
	sum := decodeResponse[summaryResponse](t, env.do(t, "GET", "/v1/steps/summary", ""))
	if sum.Summary == nil || sum.Summary.Total != 5 {
		t.Fatalf("summary Total = %+v, want 5", sum.Summary)
	}

	if _, err := env.svc.RecordDelta(ctx, 7); err != nil {
		t.Fatalf("RecordDelta() error = %v", err)
	}
	second := decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history", ""))
	if second.Entries[0].Steps != 12 {
		t.Errorf("history Steps = %d after sensor delta, want 12", second.Entries[0].Steps)
	}
	sum = decodeResponse[summaryResponse](t, env.do(t, "GET", "/v1/steps/summary", ""))
	if sum.Summary == nil || sum.Summary.Total != 12 {
		t.Errorf("summary Total = %+v after sensor delta, want 12", sum.Summary)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	*env.clock = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	env.do(t, "POST", "/v1/lifecycle", `{"state": "active"}`)
	for _, steps := range []int64{1000, 3000, 2000} {
		env.do(t, "POST", "/v1/steps/deltas", `{"steps": `+strconv.FormatInt(steps, 10)+`}`)
		*env.clock = env.clock.Add(24 * time.Hour)
	}

	resp := decodeResponse[summaryResponse](t, env.do(t, "GET", "/v1/steps/summary?window=30", ""))
	if resp.Summary == nil {
		t.Fatal("Summary = nil, want aggregate")
	}
	if resp.Summary.Total != 6000 {
		t.Errorf("Total = %d, want 6000", resp.Summary.Total)
	}
	if resp.Summary.Average != 2000 {
		t.Errorf("Average = %d, want 2000", resp.Summary.Average)
	}
	if resp.Summary.Best.Date != "2024-01-02" {
		t.Errorf("Best.Date = %s, want 2024-01-02", resp.Summary.Best.Date)
	}

	if w := env.do(t, "GET", "/v1/steps/summary?window=12", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid window status = %d, want 400", w.Code)
	}
}

func TestSummaryEmptyLedger(t *testing.T) {
	env := newTestEnv(t)

	resp := decodeResponse[summaryResponse](t, env.do(t, "GET", "/v1/steps/summary", ""))
	if resp.Summary != nil {
		t.Errorf("Summary = %+v on empty ledger, want null", resp.Summary)
	}
}

func TestClearHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/v1/steps/deltas", `{"steps": 100}`)
	if w := env.do(t, "DELETE", "/v1/steps/history", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	resp := decodeResponse[historyResponse](t, env.do(t, "GET", "/v1/steps/history", ""))
	if resp.Count != 0 {
		t.Errorf("Count = %d after clear, want 0", resp.Count)
	}

	// Clearing an already empty ledger is still a 204.
	if w := env.do(t, "DELETE", "/v1/steps/history", ""); w.Code != http.StatusNoContent {
		t.Errorf("second clear status = %d, want 204", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "GET", "/v1/steps/deltas", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", w.Code)
	}
	if w := env.do(t, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", w.Code)
	}
}

func TestReadyzFailure(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	logger := log.New(log.DefaultConfig())
	svc := ledger.NewService(&memStore{}, nil, nil, logger, ledger.Config{
		Now: func() time.Time { return now },
	})
	server := NewServer(":0", svc, logger, Options{
		Ready: func(ctx context.Context) error { return errors.New("db unreachable") },
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	r := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/v1/steps/today", "")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("Content-Security-Policy header missing")
	}
}
