package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// Metrics returns report counters and the mean open-to-resolved time in hours.
func (r *ReportRepo) Metrics(ctx context.Context) (*domain.ReportMetrics, error) {
	var m domain.ReportMetrics
	err := r.db.Pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'open'),
		       count(*) FILTER (WHERE status = 'resolved'),
		       COALESCE(
		           AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)))
		               FILTER (WHERE status = 'resolved' AND resolved_at IS NOT NULL),
		           0)::float8 / 3600.0
		FROM waste_reports
	`).Scan(&m.Total, &m.Unresolved, &m.Resolved, &m.AvgResolutionTimeHours)
	if err != nil {
		return nil, fmt.Errorf("report metrics: %w", err)
	}
	return &m, nil
}

// HeatPoints returns the location of every report, or only open ones.
func (r *ReportRepo) HeatPoints(ctx context.Context, unresolvedOnly bool) ([]domain.Coordinate, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ST_Y(location::geometry), ST_X(location::geometry)
		FROM waste_reports
		WHERE NOT $1 OR status = 'open'
	`, unresolvedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.Coordinate
	for rows.Next() {
		var c domain.Coordinate
		if err := rows.Scan(&c.Lat, &c.Lon); err != nil {
			return nil, err
		}
		points = append(points, c)
	}
	return points, rows.Err()
}

// MonthlyCounts groups reports created since the given time by UTC calendar month.
func (r *ReportRepo) MonthlyCounts(ctx context.Context, since time.Time) ([]domain.MonthlyCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month, count(*)
		FROM waste_reports
		WHERE created_at >= $1
		GROUP BY month
		ORDER BY month
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.MonthlyCount
	for rows.Next() {
		var c domain.MonthlyCount
		if err := rows.Scan(&c.Month, &c.Reports); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TopAreas returns the location labels with the most reports.
func (r *ReportRepo) TopAreas(ctx context.Context, limit int) ([]domain.AreaCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT location_label, count(*) AS n
		FROM waste_reports
		WHERE location_label <> ''
		GROUP BY location_label
		ORDER BY n DESC, location_label
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []domain.AreaCount
	for rows.Next() {
		var a domain.AreaCount
		if err := rows.Scan(&a.Area, &a.Count); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}
