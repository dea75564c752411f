package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/household-energy-dashboard/internal/household"
	"github.com/i474232898/household-energy-dashboard/internal/store"
)

type memObjects struct {
	objects map[string]string
	listErr error
	block   chan struct{}
}

func (m *memObjects) Name() string { return "mem" }

func (m *memObjects) List(ctx context.Context) ([]string, error) {
	if m.block != nil {
		<-m.block
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memObjects) Download(ctx context.Context, id string) ([]byte, error) {
	return []byte(m.objects[id]), nil
}

func newTestApp(t *testing.T, objects *memObjects) (*fiber.App, *household.Service) {
	t.Helper()
	app := fiber.New()
	slot := store.NewTableSlot()
	svc := household.NewService(objects, slot, household.Options{}, nil, nil)
	RegisterRoutes(app, svc, slot)
	return app, svc
}

func twoReadings() *memObjects {
	return &memObjects{objects: map[string]string{
		"house1/a.json": `{"sensor":"house1","data":{"Time":"2024-01-01T00:00:00","Appliance1":120}}`,
		"house1/b.json": `{"sensor":"house1","data":{"Time":"2024-01-01T00:05:00","Appliance2":40}}`,
	}}
}

func doRequest(t *testing.T, app *fiber.App, method, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return resp.StatusCode
}

// TestQueriesBeforeFirstRefresh verifies every query answers with empty
// lists while nothing has been published.
func TestQueriesBeforeFirstRefresh(t *testing.T) {
	app, _ := newTestApp(t, twoReadings())

	var sensors struct {
		Sensors []string `json:"sensors"`
	}
	if code := doRequest(t, app, http.MethodGet, "/api/v1/sensors", &sensors); code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if sensors.Sensors == nil || len(sensors.Sensors) != 0 {
		t.Fatalf("expected empty sensor list, got %v", sensors.Sensors)
	}

	var series struct {
		Points  []household.Point `json:"points"`
		Message string            `json:"message"`
	}
	code := doRequest(t, app, http.MethodGet, "/api/v1/sensors/house1/dates/2024-01-01/series?appliance=Refrigerator", &series)
	if code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if len(series.Points) != 0 || series.Message != "No data available for house1 on 2024-01-01." {
		t.Fatalf("unexpected series response: %+v", series)
	}

	var status struct {
		State      string `json:"state"`
		Published  bool   `json:"published"`
		Generation int64  `json:"generation"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/status", &status)
	if status.Published || status.State != "idle" || status.Generation != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

// TestQueriesAfterRefresh walks the dashboard selectors after one refresh.
func TestQueriesAfterRefresh(t *testing.T) {
	app, _ := newTestApp(t, twoReadings())

	var refreshed struct {
		CycleID string `json:"cycle_id"`
		Rows    int    `json:"rows"`
	}
	if code := doRequest(t, app, http.MethodPost, "/api/v1/refresh", &refreshed); code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if refreshed.CycleID == "" || refreshed.Rows != 2 {
		t.Fatalf("unexpected refresh response: %+v", refreshed)
	}

	var sensors struct {
		Sensors []string `json:"sensors"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/sensors", &sensors)
	if len(sensors.Sensors) != 1 || sensors.Sensors[0] != "house1" {
		t.Fatalf("unexpected sensors: %v", sensors.Sensors)
	}

	var dates struct {
		Dates []string `json:"dates"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/sensors/house1/dates", &dates)
	if len(dates.Dates) != 1 || dates.Dates[0] != "2024-01-01" {
		t.Fatalf("unexpected dates: %v", dates.Dates)
	}

	var appliances struct {
		Appliances []string `json:"appliances"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/sensors/house1/dates/2024-01-01/appliances", &appliances)
	if len(appliances.Appliances) != 2 ||
		appliances.Appliances[0] != "Refrigerator" || appliances.Appliances[1] != "Washing machine" {
		t.Fatalf("unexpected appliances: %v", appliances.Appliances)
	}

	var series struct {
		Points  []household.Point `json:"points"`
		Message string            `json:"message"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/sensors/house1/dates/2024-01-01/series?appliance=Washing%20machine", &series)
	if len(series.Points) != 1 || series.Points[0].Value != 40 || series.Message != "" {
		t.Fatalf("unexpected series: %+v", series)
	}
	want := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	if !series.Points[0].Time.Equal(want) {
		t.Fatalf("expected point at %s, got %s", want, series.Points[0].Time)
	}

	var status struct {
		Published  bool   `json:"published"`
		Generation int64  `json:"generation"`
		CycleID    string `json:"cycle_id"`
		Rows       int    `json:"rows"`
		Objects    int    `json:"objects"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/status", &status)
	if !status.Published || status.Generation != 1 || status.CycleID != refreshed.CycleID ||
		status.Rows != 2 || status.Objects != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

// TestParameterValidation verifies malformed selectors are rejected.
func TestParameterValidation(t *testing.T) {
	app, _ := newTestApp(t, twoReadings())

	for _, target := range []string{
		"/api/v1/sensors/house1/dates/2024-13-01/appliances",
		"/api/v1/sensors/house1/dates/01-01-2024/series?appliance=Refrigerator",
		"/api/v1/sensors/house1/dates/2024-01-01/series",
	} {
		if code := doRequest(t, app, http.MethodGet, target, nil); code != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, code)
		}
	}
}

// TestRefreshFailureKeepsPreviousData verifies a failed manual refresh
// reports a gateway error and leaves the published table alone.
func TestRefreshFailureKeepsPreviousData(t *testing.T) {
	objects := twoReadings()
	app, svc := newTestApp(t, objects)

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	objects.listErr = errors.New("container unreachable")

	if code := doRequest(t, app, http.MethodPost, "/api/v1/refresh", nil); code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, code)
	}

	var sensors struct {
		Sensors []string `json:"sensors"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/sensors", &sensors)
	if len(sensors.Sensors) != 1 {
		t.Fatalf("expected previous table to survive, got %v", sensors.Sensors)
	}
}

// TestRefreshConflict verifies a manual refresh is refused while a cycle
// is already running.
func TestRefreshConflict(t *testing.T) {
	objects := twoReadings()
	objects.block = make(chan struct{})
	app, svc := newTestApp(t, objects)

	done := make(chan error, 1)
	go func() { done <- svc.Refresh(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for svc.State() != household.StateFetching {
		if time.Now().After(deadline) {
			t.Fatal("refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	if code := doRequest(t, app, http.MethodPost, "/api/v1/refresh", nil); code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, code)
	}

	close(objects.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestSeriesNoDataMessage verifies the "no data" message depends on the
// sensor and day only, not on the appliance asked for.
func TestSeriesNoDataMessage(t *testing.T) {
	objects := &memObjects{objects: map[string]string{
		"house1/a.json": `{"sensor":"house1","data":{"Time":"2024-01-01T00:00:00","Appliance2":40}}`,
	}}
	app, svc := newTestApp(t, objects)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var series struct {
		Points  []household.Point `json:"points"`
		Message string            `json:"message"`
	}
	doRequest(t, app, http.MethodGet, "/api/v1/sensors/house1/dates/2024-01-01/series?appliance=Refrigerator", &series)
	if len(series.Points) != 0 || series.Message != "" {
		t.Fatalf("expected empty points without message, got %+v", series)
	}

	series.Message = ""
	doRequest(t, app, http.MethodGet, "/api/v1/sensors/house1/dates/2024-01-02/series?appliance=Refrigerator", &series)
	if series.Message != "No data available for house1 on 2024-01-02." {
		t.Fatalf("unexpected message: %q", series.Message)
	}
}
