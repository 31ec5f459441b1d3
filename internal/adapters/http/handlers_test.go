package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/environmenttech/wastewatch/internal/adapters/http"
	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
	"github.com/environmenttech/wastewatch/internal/pkg/auth"
)

// ---- Mock repositories ----

type mockReportRepo struct {
	createFn   func(ctx context.Context, r *domain.WasteReport) error
	getByIDFn  func(ctx context.Context, id string) (*domain.WasteReport, error)
	listFn     func(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error)
	listOpenFn func(ctx context.Context, limit int) ([]domain.WasteReport, error)
	resolveFn  func(ctx context.Context, id, by string, at time.Time) (*domain.WasteReport, error)
	authorsFn  func(ctx context.Context) ([]domain.ReportAuthor, error)
}

func (m *mockReportRepo) Create(ctx context.Context, r *domain.WasteReport) error {
	if m.createFn != nil {
		return m.createFn(ctx, r)
	}
	return nil
}
func (m *mockReportRepo) GetByID(ctx context.Context, id string) (*domain.WasteReport, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}
func (m *mockReportRepo) List(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return nil, 0, nil
}
func (m *mockReportRepo) ListOpen(ctx context.Context, limit int) ([]domain.WasteReport, error) {
	if m.listOpenFn != nil {
		return m.listOpenFn(ctx, limit)
	}
	return nil, nil
}
func (m *mockReportRepo) FindOpenNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.WasteReport, error) {
	return m.ListOpen(ctx, limit)
}
func (m *mockReportRepo) FindOpenNearest(ctx context.Context, center domain.Coordinate, limit int) ([]domain.WasteReport, error) {
	return m.ListOpen(ctx, limit)
}
func (m *mockReportRepo) Resolve(ctx context.Context, id, by string, at time.Time) (*domain.WasteReport, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id, by, at)
	}
	return nil, domain.ErrNotFound
}
func (m *mockReportRepo) UpdateLocationLabel(ctx context.Context, id, label string) error {
	return nil
}
func (m *mockReportRepo) Authors(ctx context.Context) ([]domain.ReportAuthor, error) {
	if m.authorsFn != nil {
		return m.authorsFn(ctx)
	}
	return nil, nil
}

type mockStatsRepo struct {
	metricsFn func(ctx context.Context) (*domain.ReportMetrics, error)
}

func (m *mockStatsRepo) Metrics(ctx context.Context) (*domain.ReportMetrics, error) {
	if m.metricsFn != nil {
		return m.metricsFn(ctx)
	}
	return &domain.ReportMetrics{}, nil
}
func (m *mockStatsRepo) HeatPoints(ctx context.Context, unresolvedOnly bool) ([]domain.Coordinate, error) {
	return []domain.Coordinate{{Lat: 18.52, Lon: 73.85}}, nil
}
func (m *mockStatsRepo) MonthlyCounts(ctx context.Context, since time.Time) ([]domain.MonthlyCount, error) {
	return nil, nil
}
func (m *mockStatsRepo) TopAreas(ctx context.Context, limit int) ([]domain.AreaCount, error) {
	return []domain.AreaCount{{Area: "Kothrud", Count: 4}}, nil
}

type directionsFunc func(ctx context.Context, origin, dest domain.Coordinate) (*domain.RouteSummary, error)

func (f directionsFunc) Directions(ctx context.Context, origin, dest domain.Coordinate) (*domain.RouteSummary, error) {
	return f(ctx, origin, dest)
}

type geocoderFunc func(ctx context.Context, at domain.Coordinate) (string, error)

func (f geocoderFunc) Reverse(ctx context.Context, at domain.Coordinate) (string, error) {
	return f(ctx, at)
}

// ---- Test helpers ----

const (
	reportID = "7f1c7a52-3a0e-4d7c-9d8e-2f9b0a1c6e11"
	testKey  = "handler-test-secret-0123456789"
)

var (
	pune     = domain.Coordinate{Lat: 18.5204, Lon: 73.8567}
	pimpri   = domain.Coordinate{Lat: 18.6298, Lon: 73.7997}
	authSvc  = mustAuth()
	openTest = domain.WasteReport{
		ID:            reportID,
		UserID:        "u-reporter",
		ReporterEmail: "reporter@example.org",
		Description:   "Overflowing bin",
		Location:      pimpri,
		Status:        domain.StatusOpen,
	}
)

func mustAuth() *auth.Service {
	s, err := auth.NewService(testKey, "wastewatch", time.Hour)
	if err != nil {
		panic(err)
	}
	return s
}

func token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := authSvc.Issue(userID, userID+"@example.org", role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps, handler.RouterOptions{DisableLimit: true})
	return app
}

type depsConfig struct {
	reports    *mockReportRepo
	stats      *mockStatsRepo
	directions directionsFunc
	geocoder   geocoderFunc
}

func makeDeps(opts ...func(*depsConfig)) *handler.Dependencies {
	cfg := &depsConfig{
		reports: &mockReportRepo{},
		stats:   &mockStatsRepo{},
		directions: func(ctx context.Context, origin, dest domain.Coordinate) (*domain.RouteSummary, error) {
			return &domain.RouteSummary{
				Path:            []domain.Coordinate{origin, {Lat: 18.58, Lon: 73.82}, dest},
				DistanceMeters:  15234,
				DurationSeconds: 1530,
			}, nil
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	d := &handler.Dependencies{
		Reports:   usecases.NewReportService(cfg.reports, nil, nil),
		Proximity: usecases.NewProximityService(cfg.reports),
		Routes:    usecases.NewRouteService(cfg.directions, usecases.RouteConfig{}),
		Admin:     usecases.NewAdminService(cfg.stats, cfg.reports, nil),
		Auth:      authSvc,
	}
	if cfg.geocoder != nil {
		d.Geocoder = cfg.geocoder
	}
	return d
}

func do(t *testing.T, app *fiber.App, method, target, tok string, body io.Reader) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d", status, resp.StatusCode)
	}
	var apiErr handler.APIError
	decode(t, resp, &apiErr)
	if apiErr.Code != code {
		t.Errorf("expected code %q, got %q (%s)", code, apiErr.Code, apiErr.Message)
	}
}

// ---- Health ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())
	resp := do(t, app, "GET", "/v1/health", "", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestReady_NoDB(t *testing.T) {
	app := setupApp(makeDeps())
	resp := do(t, app, "GET", "/v1/ready", "", nil)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- Authentication ----

func TestReports_RequireToken(t *testing.T) {
	app := setupApp(makeDeps())
	expectError(t, do(t, app, "GET", "/v1/reports", "", nil), 401, "unauthorized")
	expectError(t, do(t, app, "GET", "/v1/reports", "not-a-jwt", nil), 401, "unauthorized")
}

func TestCollectorRoutes_RejectUserRole(t *testing.T) {
	app := setupApp(makeDeps())
	expectError(t, do(t, app, "GET", "/v1/collector/reports", token(t, "u-1", auth.RoleUser), nil), 403, "forbidden")
}

func TestAdminRoutes_RejectCollector(t *testing.T) {
	app := setupApp(makeDeps())
	expectError(t, do(t, app, "GET", "/v1/admin/metrics", token(t, "c-1", auth.RoleCollector), nil), 403, "forbidden")
}

// ---- Reports ----

func TestCreateReport_Success(t *testing.T) {
	var stored *domain.WasteReport
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.createFn = func(ctx context.Context, r *domain.WasteReport) error {
			stored = r
			return nil
		}
	}))

	body := `{"description":"Garbage pile near bus stop","location":{"lat":18.5204,"lon":73.8567},"rank":1}`
	resp := do(t, app, "POST", "/v1/reports", token(t, "u-1", auth.RoleUser), strings.NewReader(body))
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if stored == nil || stored.UserID != "u-1" || stored.ReporterEmail != "u-1@example.org" {
		t.Fatalf("report not stored with caller identity: %+v", stored)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/reports/"+stored.ID {
		t.Errorf("unexpected Location header %q", loc)
	}
	if stored.Priority() != domain.PriorityHigh {
		t.Errorf("expected High priority, got %s", stored.Priority())
	}
}

func TestCreateReport_InvalidCoordinate(t *testing.T) {
	app := setupApp(makeDeps())
	tok := token(t, "u-1", auth.RoleUser)

	resp := do(t, app, "POST", "/v1/reports", tok, strings.NewReader(`{"description":"x","location":{"lat":91,"lon":73.8}}`))
	expectError(t, resp, 400, "invalid_coordinate")

	resp = do(t, app, "POST", "/v1/reports", tok, strings.NewReader(`{"description":"x"}`))
	expectError(t, resp, 400, "invalid_coordinate")
}

func TestCreateReport_MissingDescription(t *testing.T) {
	app := setupApp(makeDeps())
	resp := do(t, app, "POST", "/v1/reports", token(t, "u-1", auth.RoleUser),
		strings.NewReader(`{"description":"  ","location":{"lat":18.5,"lon":73.8}}`))
	expectError(t, resp, 400, "bad_request")
}

func TestListReports_PaginationAndRedaction(t *testing.T) {
	var seen domain.ReportQuery
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.listFn = func(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
			seen = q
			return []domain.WasteReport{openTest}, 9, nil
		}
	}))

	resp := do(t, app, "GET", "/v1/reports?filter=open&offset=0&limit=3", token(t, "u-other", auth.RoleUser), nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if seen.Filter != domain.FilterOpen || seen.Limit != 3 {
		t.Errorf("unexpected query %+v", seen)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="next"`, `rel="last"`, "filter=open"} {
		if !strings.Contains(link, rel) {
			t.Errorf("expected %s in Link header, got %s", rel, link)
		}
	}

	var result struct {
		Data       []domain.WasteReport `json:"data"`
		Pagination handler.Pagination   `json:"pagination"`
	}
	decode(t, resp, &result)
	if result.Pagination.Total != 9 || len(result.Data) != 1 {
		t.Fatalf("unexpected page %+v", result.Pagination)
	}
	if result.Data[0].ReporterEmail != "" {
		t.Errorf("expected reporter email hidden from other users")
	}
}

func TestAdminReports_ShowEmail(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.listFn = func(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
			return []domain.WasteReport{openTest}, 1, nil
		}
	}))

	resp := do(t, app, "GET", "/v1/admin/reports", token(t, "a-1", auth.RoleAdmin), nil)
	var result struct {
		Data []domain.WasteReport `json:"data"`
	}
	decode(t, resp, &result)
	if len(result.Data) != 1 || result.Data[0].ReporterEmail != "reporter@example.org" {
		t.Errorf("expected admin to see reporter email, got %+v", result.Data)
	}
}

func TestListReports_BadFilter(t *testing.T) {
	app := setupApp(makeDeps())
	expectError(t, do(t, app, "GET", "/v1/reports?filter=bogus", token(t, "u-1", auth.RoleUser), nil), 400, "bad_request")
}

func TestGetReport_NotFound(t *testing.T) {
	app := setupApp(makeDeps())
	tok := token(t, "u-1", auth.RoleUser)
	expectError(t, do(t, app, "GET", "/v1/reports/"+reportID, tok, nil), 404, "not_found")
	expectError(t, do(t, app, "GET", "/v1/reports/not-a-uuid", tok, nil), 404, "not_found")
}

// ---- Collector ----

func TestNearbyReports_RankedNearestFirst(t *testing.T) {
	far := openTest
	far.ID = "far"
	far.Location = domain.Coordinate{Lat: 19.0760, Lon: 72.8777}
	near := openTest
	near.ID = "near"
	near.Location = domain.Coordinate{Lat: 18.5310, Lon: 73.8470}

	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.listOpenFn = func(ctx context.Context, limit int) ([]domain.WasteReport, error) {
			return []domain.WasteReport{far, near}, nil
		}
	}))
	tok := token(t, "c-1", auth.RoleCollector)

	resp := do(t, app, "GET", "/v1/collector/reports?lat=18.5204&lon=73.8567", tok, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var ranked []struct {
		ID           string   `json:"id"`
		DistanceKm   *float64 `json:"distance_km"`
		Minutes      *int     `json:"minutes"`
		DistanceText string   `json:"distance_text"`
	}
	decode(t, resp, &ranked)
	if len(ranked) != 2 || ranked[0].ID != "near" || ranked[1].ID != "far" {
		t.Fatalf("expected [near far], got %+v", ranked)
	}
	if ranked[0].DistanceKm == nil || !strings.HasSuffix(ranked[0].DistanceText, " km") {
		t.Errorf("expected an estimate for the nearest report, got %+v", ranked[0])
	}

	resp = do(t, app, "GET", "/v1/collector/reports", tok, nil)
	decode(t, resp, &ranked)
	if len(ranked) != 2 || ranked[0].ID != "far" || ranked[0].DistanceKm != nil {
		t.Errorf("expected unranked input order without estimates, got %+v", ranked)
	}
}

func TestNearbyReports_InvalidOrigin(t *testing.T) {
	app := setupApp(makeDeps())
	resp := do(t, app, "GET", "/v1/collector/reports?lat=18.5&lon=200", token(t, "c-1", auth.RoleCollector), nil)
	expectError(t, resp, 400, "invalid_coordinate")
}

type routeBody struct {
	Origin          domain.Coordinate   `json:"origin"`
	Path            []domain.Coordinate `json:"path"`
	Polyline        string              `json:"polyline"`
	DistanceKm      *float64            `json:"distance_km"`
	DurationMinutes *int                `json:"duration_minutes"`
	DistanceText    string              `json:"distance_text"`
	DurationText    string              `json:"duration_text"`
	Available       bool                `json:"available"`
	Fallback        bool                `json:"fallback"`
	FallbackReason  string              `json:"fallback_reason"`
}

func withOpenReport(c *depsConfig) {
	c.reports.getByIDFn = func(ctx context.Context, id string) (*domain.WasteReport, error) {
		if id != reportID {
			return nil, domain.ErrNotFound
		}
		r := openTest
		return &r, nil
	}
}

func TestReportRoute_Resolved(t *testing.T) {
	var origin domain.Coordinate
	app := setupApp(makeDeps(withOpenReport, func(c *depsConfig) {
		inner := c.directions
		c.directions = func(ctx context.Context, o, d domain.Coordinate) (*domain.RouteSummary, error) {
			origin = o
			return inner(ctx, o, d)
		}
	}))

	resp := do(t, app, "GET", "/v1/collector/reports/"+reportID+"/route?lat=18.5204&lon=73.8567", token(t, "c-1", auth.RoleCollector), nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body routeBody
	decode(t, resp, &body)

	if origin != pune {
		t.Errorf("expected device fix as origin, got %+v", origin)
	}
	if !body.Available || body.Fallback {
		t.Errorf("expected a resolved route, got %+v", body)
	}
	if body.DistanceText != "15.23 km" || body.DurationText != "26 mins" {
		t.Errorf("unexpected summary %q %q", body.DistanceText, body.DurationText)
	}
	if len(body.Path) != 3 || body.Polyline == "" {
		t.Errorf("expected decoded path and polyline, got %+v", body)
	}
}

func TestReportRoute_FallbackOnGeolocationFailure(t *testing.T) {
	calls := 0
	app := setupApp(makeDeps(withOpenReport, func(c *depsConfig) {
		c.directions = func(ctx context.Context, o, d domain.Coordinate) (*domain.RouteSummary, error) {
			calls++
			return nil, errors.New("must not be called")
		}
	}))

	for _, target := range []string{
		"/v1/collector/reports/" + reportID + "/route?geo_error=permission_denied",
		"/v1/collector/reports/" + reportID + "/route",
		"/v1/collector/reports/" + reportID + "/route?lat=95&lon=73.8",
	} {
		resp := do(t, app, "GET", target, token(t, "c-1", auth.RoleCollector), nil)
		if resp.StatusCode != 200 {
			t.Fatalf("%s: expected 200, got %d", target, resp.StatusCode)
		}
		var body routeBody
		decode(t, resp, &body)
		if !body.Fallback || body.Available {
			t.Errorf("%s: expected fallback route, got %+v", target, body)
		}
		if body.DistanceKm != nil || body.DurationMinutes != nil || body.DistanceText != "" {
			t.Errorf("%s: expected distance and duration unavailable, got %+v", target, body)
		}
		if body.Origin != usecases.DefaultFallbackOrigin || len(body.Path) != 2 {
			t.Errorf("%s: expected two-point path from fallback origin, got %+v", target, body)
		}
	}
	if calls != 0 {
		t.Errorf("expected no directions request, got %d", calls)
	}
}

func TestReportRoute_ProviderFailureIsNotMasked(t *testing.T) {
	app := setupApp(makeDeps(withOpenReport, func(c *depsConfig) {
		c.directions = func(ctx context.Context, o, d domain.Coordinate) (*domain.RouteSummary, error) {
			return nil, fmt.Errorf("%w: status 500", domain.ErrRouteProvider)
		}
	}))

	resp := do(t, app, "GET", "/v1/collector/reports/"+reportID+"/route?lat=18.5204&lon=73.8567", token(t, "c-1", auth.RoleCollector), nil)
	expectError(t, resp, 502, "route_unavailable")
}

func TestReportRoute_UnknownReport(t *testing.T) {
	app := setupApp(makeDeps(withOpenReport))
	resp := do(t, app, "GET", "/v1/collector/reports/00000000-0000-0000-0000-000000000000/route?lat=18.5&lon=73.8", token(t, "c-1", auth.RoleCollector), nil)
	expectError(t, resp, 404, "not_found")
}

func TestResolveReport(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		resolved := false
		c.reports.resolveFn = func(ctx context.Context, id, by string, at time.Time) (*domain.WasteReport, error) {
			if resolved {
				return nil, fmt.Errorf("report %s: %w", id, domain.ErrConflict)
			}
			resolved = true
			r := openTest
			r.Status = domain.StatusResolved
			r.ResolvedBy = by
			r.ResolvedAt = &at
			return &r, nil
		}
	}))
	tok := token(t, "c-1", auth.RoleCollector)

	resp := do(t, app, "POST", "/v1/collector/reports/"+reportID+"/resolve", tok, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var r domain.WasteReport
	decode(t, resp, &r)
	if r.Status != domain.StatusResolved || r.ResolvedBy != "c-1" {
		t.Errorf("unexpected resolved report %+v", r)
	}

	expectError(t, do(t, app, "POST", "/v1/collector/reports/"+reportID+"/resolve", tok, nil), 409, "conflict")
}

// ---- Admin ----

func TestAdminMetrics(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.stats.metricsFn = func(ctx context.Context) (*domain.ReportMetrics, error) {
			return &domain.ReportMetrics{Total: 10, Unresolved: 4, Resolved: 6, AvgResolutionTimeHours: 12.5}, nil
		}
	}))
	resp := do(t, app, "GET", "/v1/admin/metrics", token(t, "a-1", auth.RoleAdmin), nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var m domain.ReportMetrics
	decode(t, resp, &m)
	if m.Total != 10 || m.Resolved != 6 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestAdminHeatmapAndCharts(t *testing.T) {
	app := setupApp(makeDeps())
	tok := token(t, "a-1", auth.RoleAdmin)

	var points []domain.HeatPoint
	decode(t, do(t, app, "GET", "/v1/admin/heatmap?unresolved=true", tok, nil), &points)
	if len(points) != 1 || points[0].Weight != 0.8 {
		t.Errorf("unexpected heat points %+v", points)
	}

	var months []domain.MonthlyCount
	decode(t, do(t, app, "GET", "/v1/admin/charts/monthly", tok, nil), &months)
	if len(months) != 12 {
		t.Errorf("expected 12 months, got %d", len(months))
	}

	var areas []domain.AreaCount
	decode(t, do(t, app, "GET", "/v1/admin/charts/areas?limit=3", tok, nil), &areas)
	if len(areas) != 1 || areas[0].Area != "Kothrud" {
		t.Errorf("unexpected areas %+v", areas)
	}
}

func TestLeaderboard(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.authorsFn = func(ctx context.Context) ([]domain.ReportAuthor, error) {
			return []domain.ReportAuthor{
				{ReportID: "1", UserID: "b", Email: "b@example.org"},
				{ReportID: "2", UserID: "a", Email: "a@example.org"},
				{ReportID: "3", UserID: "b", Email: "b@example.org"},
			}, nil
		}
	}))

	resp := do(t, app, "GET", "/v1/leaderboard", token(t, "a", auth.RoleUser), nil)
	var entries []domain.LeaderboardEntry
	decode(t, resp, &entries)
	if len(entries) != 2 || entries[0].UserID != "b" || entries[0].Reports != 2 {
		t.Fatalf("unexpected leaderboard %+v", entries)
	}
	if entries[0].Email != "" || entries[1].Email != "a@example.org" {
		t.Errorf("expected only the caller's email visible, got %+v", entries)
	}
}

// ---- Geocoding ----

func TestReverseGeocode(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.geocoder = func(ctx context.Context, at domain.Coordinate) (string, error) {
			if at.Lat > 18.6 {
				return "", errors.New("upstream down")
			}
			return "Shivajinagar, Pune", nil
		}
	}))
	tok := token(t, "u-1", auth.RoleUser)

	var body struct {
		Label    string `json:"label"`
		Fallback bool   `json:"fallback"`
	}
	decode(t, do(t, app, "GET", "/v1/geocode/reverse?lat=18.5308&lon=73.8475", tok, nil), &body)
	if body.Label != "Shivajinagar, Pune" || body.Fallback {
		t.Errorf("unexpected geocode %+v", body)
	}

	decode(t, do(t, app, "GET", "/v1/geocode/reverse?lat=18.6298&lon=73.7997", tok, nil), &body)
	if body.Label != "Lat: 18.629800, Lon: 73.799700" || !body.Fallback {
		t.Errorf("expected coordinate label fallback, got %+v", body)
	}

	expectError(t, do(t, app, "GET", "/v1/geocode/reverse", tok, nil), 400, "invalid_coordinate")
}

// ---- GraphQL ----

func TestGraphQL_ReportsAndAdminGuard(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.listFn = func(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
			return []domain.WasteReport{openTest}, 1, nil
		}
	}))
	tok := token(t, "u-1", auth.RoleUser)

	resp := do(t, app, "POST", "/graphql", tok, strings.NewReader(`{"query":"{ reports(filter: \"open\") { id priority location { lat } } }"}`))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Data struct {
			Reports []struct {
				ID       string `json:"id"`
				Priority string `json:"priority"`
			} `json:"reports"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	decode(t, resp, &result)
	if len(result.Errors) != 0 || len(result.Data.Reports) != 1 || result.Data.Reports[0].Priority != "Low" {
		t.Fatalf("unexpected graphql result %+v", result)
	}

	resp = do(t, app, "POST", "/graphql", tok, strings.NewReader(`{"query":"{ metrics { total } }"}`))
	var denied struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	decode(t, resp, &denied)
	if len(denied.Errors) == 0 || !strings.Contains(denied.Errors[0].Message, "admin") {
		t.Errorf("expected admin-only error, got %+v", denied)
	}
}

// ---- Middleware ----

func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps(func(c *depsConfig) {
		c.reports.listFn = func(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
			return []domain.WasteReport{openTest}, 1, nil
		}
	}))
	tok := token(t, "u-1", auth.RoleUser)

	resp := do(t, app, "GET", "/v1/reports", tok, nil)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	req := httptest.NewRequest("GET", "/v1/reports", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("If-None-Match", etag)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotModified {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}
