package usecases_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// --- Mock ReportRepository ---

type mockReportRepo struct {
	createFn         func(ctx context.Context, r *domain.WasteReport) error
	getByIDFn        func(ctx context.Context, id string) (*domain.WasteReport, error)
	listFn           func(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error)
	listOpenFn       func(ctx context.Context, limit int) ([]domain.WasteReport, error)
	findOpenNearbyFn func(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.WasteReport, error)
	findNearestFn    func(ctx context.Context, center domain.Coordinate, limit int) ([]domain.WasteReport, error)
	resolveFn        func(ctx context.Context, id, by string, at time.Time) (*domain.WasteReport, error)
	updateLabelFn    func(ctx context.Context, id, label string) error
	authorsFn        func(ctx context.Context) ([]domain.ReportAuthor, error)
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
	if m.findOpenNearbyFn != nil {
		return m.findOpenNearbyFn(ctx, center, radiusMeters, limit)
	}
	return nil, nil
}

func (m *mockReportRepo) FindOpenNearest(ctx context.Context, center domain.Coordinate, limit int) ([]domain.WasteReport, error) {
	if m.findNearestFn != nil {
		return m.findNearestFn(ctx, center, limit)
	}
	return nil, nil
}

func (m *mockReportRepo) Resolve(ctx context.Context, id, by string, at time.Time) (*domain.WasteReport, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id, by, at)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReportRepo) UpdateLocationLabel(ctx context.Context, id, label string) error {
	if m.updateLabelFn != nil {
		return m.updateLabelFn(ctx, id, label)
	}
	return nil
}

func (m *mockReportRepo) Authors(ctx context.Context) ([]domain.ReportAuthor, error) {
	if m.authorsFn != nil {
		return m.authorsFn(ctx)
	}
	return nil, nil
}

// --- Mock ReportStatsRepository ---

type mockStatsRepo struct {
	metricsFn    func(ctx context.Context) (*domain.ReportMetrics, error)
	heatPointsFn func(ctx context.Context, unresolvedOnly bool) ([]domain.Coordinate, error)
	monthlyFn    func(ctx context.Context, since time.Time) ([]domain.MonthlyCount, error)
	topAreasFn   func(ctx context.Context, limit int) ([]domain.AreaCount, error)
}

func (m *mockStatsRepo) Metrics(ctx context.Context) (*domain.ReportMetrics, error) {
	return m.metricsFn(ctx)
}

func (m *mockStatsRepo) HeatPoints(ctx context.Context, unresolvedOnly bool) ([]domain.Coordinate, error) {
	return m.heatPointsFn(ctx, unresolvedOnly)
}

func (m *mockStatsRepo) MonthlyCounts(ctx context.Context, since time.Time) ([]domain.MonthlyCount, error) {
	return m.monthlyFn(ctx, since)
}

func (m *mockStatsRepo) TopAreas(ctx context.Context, limit int) ([]domain.AreaCount, error) {
	return m.topAreasFn(ctx, limit)
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.ReportEvent
	err    error
}

func (m *mockPublisher) PublishReportEvent(ctx context.Context, e *domain.ReportEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return m.err
}

// --- In-memory CacheService ---

var errCacheMiss = errors.New("cache miss")

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) keysWithPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// --- Geolocation and directions fakes ---

type locatorFunc func(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error)

func (f locatorFunc) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	return f(ctx, opts)
}

func fixedLocator(c domain.Coordinate) locatorFunc {
	return func(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
		return c, nil
	}
}

func failingLocator(reason domain.GeolocationReason) locatorFunc {
	return func(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
		return domain.Coordinate{}, domain.NewGeolocationError(reason, nil)
	}
}

type directionsFunc func(ctx context.Context, origin, destination domain.Coordinate) (*domain.RouteSummary, error)

func (f directionsFunc) Directions(ctx context.Context, origin, destination domain.Coordinate) (*domain.RouteSummary, error) {
	return f(ctx, origin, destination)
}
