package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
)

const (
	adminMetricsKey = "admin:metrics"
	adminCacheTTL   = 60

	// HeatWeight is the intensity every report contributes to the heatmap.
	HeatWeight = 0.8
)

// AdminService serves the admin dashboard aggregates.
type AdminService struct {
	stats   ports.ReportStatsRepository
	reports ports.ReportRepository
	cache   ports.CacheService
	now     func() time.Time
}

// NewAdminService creates a new AdminService. cache may be nil.
func NewAdminService(stats ports.ReportStatsRepository, reports ports.ReportRepository, cache ports.CacheService) *AdminService {
	return &AdminService{stats: stats, reports: reports, cache: cache, now: time.Now}
}

// Metrics returns the dashboard counters.
func (s *AdminService) Metrics(ctx context.Context) (*domain.ReportMetrics, error) {
	var m domain.ReportMetrics
	if s.cached(ctx, adminMetricsKey, &m) {
		return &m, nil
	}
	fresh, err := s.stats.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("report metrics: %w", err)
	}
	s.store(ctx, adminMetricsKey, fresh)
	return fresh, nil
}

// Heatmap returns weighted points for every report, or only open ones.
func (s *AdminService) Heatmap(ctx context.Context, unresolvedOnly bool) ([]domain.HeatPoint, error) {
	key := fmt.Sprintf("admin:heatmap:%t", unresolvedOnly)
	var points []domain.HeatPoint
	if s.cached(ctx, key, &points) {
		return points, nil
	}

	coords, err := s.stats.HeatPoints(ctx, unresolvedOnly)
	if err != nil {
		return nil, fmt.Errorf("heat points: %w", err)
	}
	points = make([]domain.HeatPoint, len(coords))
	for i, c := range coords {
		points[i] = domain.HeatPoint{Lat: c.Lat, Lon: c.Lon, Weight: HeatWeight}
	}
	s.store(ctx, key, points)
	return points, nil
}

// MonthlyCounts returns report counts for the last twelve calendar months, oldest first.
// Months without reports are present with a zero count.
func (s *AdminService) MonthlyCounts(ctx context.Context) ([]domain.MonthlyCount, error) {
	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)

	rows, err := s.stats.MonthlyCounts(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("monthly counts: %w", err)
	}
	byMonth := make(map[string]int, len(rows))
	for _, r := range rows {
		byMonth[r.Month] = r.Reports
	}

	out := make([]domain.MonthlyCount, 0, 12)
	for i := 0; i < 12; i++ {
		m := first.AddDate(0, i, 0).Format("2006-01")
		out = append(out, domain.MonthlyCount{Month: m, Reports: byMonth[m]})
	}
	return out, nil
}

// TopAreas returns the location labels with the most reports.
func (s *AdminService) TopAreas(ctx context.Context, limit int) ([]domain.AreaCount, error) {
	if limit <= 0 || limit > 50 {
		limit = 6
	}
	return s.stats.TopAreas(ctx, limit)
}

// Leaderboard returns the reporters with the most reports.
func (s *AdminService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	authors, err := s.reports.Authors(ctx)
	if err != nil {
		return nil, fmt.Errorf("report authors: %w", err)
	}
	return BuildLeaderboard(authors, limit), nil
}

// BuildLeaderboard groups reports by reporter, counts them and sorts descending.
// Ties are broken by user ID; equal counts share a rank.
func BuildLeaderboard(authors []domain.ReportAuthor, limit int) []domain.LeaderboardEntry {
	counts := make(map[string]*domain.LeaderboardEntry)
	for _, a := range authors {
		if a.UserID == "" {
			continue
		}
		e, ok := counts[a.UserID]
		if !ok {
			e = &domain.LeaderboardEntry{UserID: a.UserID}
			counts[a.UserID] = e
		}
		if e.Email == "" {
			e.Email = a.Email
		}
		e.Reports++
	}

	entries := make([]domain.LeaderboardEntry, 0, len(counts))
	for _, e := range counts {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Reports != entries[j].Reports {
			return entries[i].Reports > entries[j].Reports
		}
		return entries[i].UserID < entries[j].UserID
	})

	for i := range entries {
		if i > 0 && entries[i].Reports == entries[i-1].Reports {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func (s *AdminService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *AdminService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, adminCacheTTL)
	}
}
