package ports

import (
	"context"
	"time"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// ReportRepository persists waste reports.
type ReportRepository interface {
	Create(ctx context.Context, report *domain.WasteReport) error
	GetByID(ctx context.Context, id string) (*domain.WasteReport, error)
	// List returns one page of reports, newest first, and the total matching count.
	List(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error)
	ListOpen(ctx context.Context, limit int) ([]domain.WasteReport, error)
	FindOpenNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.WasteReport, error)
	// FindOpenNearest returns the limit open reports closest to center, nearest first.
	FindOpenNearest(ctx context.Context, center domain.Coordinate, limit int) ([]domain.WasteReport, error)
	// Resolve moves an open report to resolved. Returns domain.ErrConflict when it is not open.
	Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*domain.WasteReport, error)
	UpdateLocationLabel(ctx context.Context, id, label string) error
	Authors(ctx context.Context) ([]domain.ReportAuthor, error)
}

// ReportStatsRepository serves the admin aggregates.
type ReportStatsRepository interface {
	Metrics(ctx context.Context) (*domain.ReportMetrics, error)
	HeatPoints(ctx context.Context, unresolvedOnly bool) ([]domain.Coordinate, error)
	MonthlyCounts(ctx context.Context, since time.Time) ([]domain.MonthlyCount, error)
	TopAreas(ctx context.Context, limit int) ([]domain.AreaCount, error)
}
