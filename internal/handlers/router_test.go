package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"geoping/internal/config"
	"geoping/internal/repository"

	"github.com/goccy/go-json"
)

type apiRecord struct {
	ID        int64    `json:"id"`
	DeviceID  string   `json:"device_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	TS        int64    `json:"ts"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := repository.ConnectWithRetry(repository.Options{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.sqlite"),
	}, 1, time.Millisecond)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := repository.NewLocationRepository(db)
	srv := httptest.NewServer(NewRouter(NewLocationHandler(repo), NewHealthHandler(repo), []string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/locations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(raw))
}

func list(t *testing.T, srv *httptest.Server, query string) []apiRecord {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/locations" + query)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var out []apiRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return out
}

func TestSubmitThenListScenario(t *testing.T) {
	srv := newTestServer(t)

	status, body := post(t, srv, `{"device_id":"d1","latitude":1.5,"longitude":2.5,"ts":1000}`)
	if status != http.StatusOK || body != `{"ok":true}` {
		t.Fatalf("submit = %d %s", status, body)
	}

	got := list(t, srv, "?device_id=d1&limit=10")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	rec := got[0]
	if rec.ID <= 0 {
		t.Errorf("id = %d, want generated positive id", rec.ID)
	}
	if rec.DeviceID != "d1" || rec.Latitude != 1.5 || rec.Longitude != 2.5 || rec.TS != 1000 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Accuracy != nil || rec.Heading != nil || rec.Speed != nil {
		t.Errorf("optionals should be null: %+v", rec)
	}
}

func TestInvalidSubmitPersistsNothing(t *testing.T) {
	srv := newTestServer(t)

	status, body := post(t, srv, `{"latitude":1.5,"longitude":2.5,"ts":1000}`)
	if status != http.StatusBadRequest || body != `{"ok":false,"error":"missing required fields"}` {
		t.Fatalf("submit = %d %s", status, body)
	}
	if got := list(t, srv, ""); len(got) != 0 {
		t.Errorf("records = %d, want 0", len(got))
	}
}

func TestListOrderingAndFiltering(t *testing.T) {
	srv := newTestServer(t)

	for _, p := range []struct {
		device string
		ts     int
	}{{"A", 100}, {"A", 300}, {"B", 250}, {"A", 200}} {
		status, body := post(t, srv, fmt.Sprintf(`{"device_id":%q,"latitude":1,"longitude":1,"ts":%d}`, p.device, p.ts))
		if status != http.StatusOK {
			t.Fatalf("submit = %d %s", status, body)
		}
	}

	a := list(t, srv, "?device_id=A")
	want := []int64{300, 200, 100}
	if len(a) != len(want) {
		t.Fatalf("len = %d, want %d", len(a), len(want))
	}
	for i, ts := range want {
		if a[i].DeviceID != "A" || a[i].TS != ts {
			t.Errorf("a[%d] = %+v, want device A ts %d", i, a[i], ts)
		}
	}

	all := list(t, srv, "")
	if len(all) != 4 || all[0].TS != 300 || all[1].TS != 250 {
		t.Errorf("unfiltered = %+v", all)
	}
}

func TestListDefaultLimit(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 105; i++ {
		status, _ := post(t, srv, fmt.Sprintf(`{"device_id":"bulk","latitude":1,"longitude":1,"ts":%d}`, i))
		if status != http.StatusOK {
			t.Fatalf("submit %d failed with %d", i, status)
		}
	}

	if got := list(t, srv, ""); len(got) != 100 {
		t.Errorf("default len = %d, want 100", len(got))
	}
	if got := list(t, srv, "?limit=5000"); len(got) != 105 {
		t.Errorf("limit=5000 len = %d, want 105", len(got))
	}
	if got := list(t, srv, "?limit=3"); len(got) != 3 || got[0].TS != 104 {
		t.Errorf("limit=3 = %+v", got)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/locations", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	post(t, srv, `{"device_id":"m","latitude":1,"longitude":1,"ts":1}`)

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"geoping_locations_ingested_total", "geoping_http_requests_total"} {
		if !strings.Contains(string(raw), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/locations", nil)
	req.Header.Set("Origin", "https://tracker.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(downDB{}).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
