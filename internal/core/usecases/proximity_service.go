package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/pkg/geospatial"
)

const maxNearbyReports = 200

// ProximityService ranks open reports by straight-line distance from the collector.
type ProximityService struct {
	reports ports.ReportRepository
}

// NewProximityService creates a new ProximityService.
func NewProximityService(reports ports.ReportRepository) *ProximityService {
	return &ProximityService{reports: reports}
}

// NearbyOpen returns open reports nearest first. With a nil origin every report
// lacks an estimate and the repository order is kept. With an origin the limit
// nearest open reports are selected before ranking, and a positive radiusKm
// further restricts them to reports within that distance of origin.
func (s *ProximityService) NearbyOpen(ctx context.Context, origin *domain.Coordinate, radiusKm float64, limit int) ([]domain.RankedReport, error) {
	if limit <= 0 || limit > maxNearbyReports {
		limit = maxNearbyReports
	}
	if origin != nil {
		if err := origin.Validate(); err != nil {
			return nil, fmt.Errorf("origin: %w", err)
		}
	}

	var (
		reports []domain.WasteReport
		err     error
	)
	switch {
	case origin != nil && radiusKm > 0:
		reports, err = s.reports.FindOpenNearby(ctx, *origin, radiusKm*1000, limit)
	case origin != nil:
		reports, err = s.reports.FindOpenNearest(ctx, *origin, limit)
	default:
		reports, err = s.reports.ListOpen(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list open reports: %w", err)
	}

	ranked := RankNearest(origin, reports)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// RankNearest estimates each report once against origin and sorts nearest first.
// Reports without an estimate sort last; ties keep their input order.
func RankNearest(origin *domain.Coordinate, reports []domain.WasteReport) []domain.RankedReport {
	ranked := make([]domain.RankedReport, len(reports))
	for i, r := range reports {
		ranked[i] = domain.RankedReport{Report: r}
		if origin != nil {
			est := geospatial.Estimate(*origin, r.Location)
			ranked[i].Estimate = &est
		}
	}
	SortNearest(ranked)
	return ranked
}

// SortNearest orders ranked reports by estimate distance, missing estimates last.
func SortNearest(ranked []domain.RankedReport) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SortDistance() < ranked[j].SortDistance()
	})
}
