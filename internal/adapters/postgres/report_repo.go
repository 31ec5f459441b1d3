package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

const reportColumns = `
	id, user_id, reporter_email, description,
	ST_Y(location::geometry) AS lat, ST_X(location::geometry) AS lon,
	location_label, status, rank, event, image_urls,
	resolved_by, resolved_at, created_at, updated_at`

// ReportRepo implements ports.ReportRepository and ports.ReportStatsRepository with pgx.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new ReportRepo.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

func scanReport(row pgx.Row) (*domain.WasteReport, error) {
	var r domain.WasteReport
	var status string
	err := row.Scan(
		&r.ID, &r.UserID, &r.ReporterEmail, &r.Description,
		&r.Location.Lat, &r.Location.Lon,
		&r.LocationLabel, &status, &r.Rank, &r.Event, &r.ImageURLs,
		&r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.ReportStatus(status)
	if r.ImageURLs == nil {
		r.ImageURLs = []string{}
	}
	return &r, nil
}

func collectReports(rows pgx.Rows) ([]domain.WasteReport, error) {
	defer rows.Close()
	var reports []domain.WasteReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// Create inserts a new report.
func (r *ReportRepo) Create(ctx context.Context, rep *domain.WasteReport) error {
	images := rep.ImageURLs
	if images == nil {
		images = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO waste_reports (id, user_id, reporter_email, description, location,
		                           location_label, status, rank, event, image_urls, created_at, updated_at)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography,
		        $7, $8, $9, $10, $11, $12, $13)
	`, rep.ID, rep.UserID, rep.ReporterEmail, rep.Description, rep.Location.Lon, rep.Location.Lat,
		rep.LocationLabel, string(rep.Status), rep.Rank, rep.Event, images, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetByID returns a report by UUID.
func (r *ReportRepo) GetByID(ctx context.Context, id string) (*domain.WasteReport, error) {
	rep, err := scanReport(r.db.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM waste_reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return rep, err
}

// listWhere builds the WHERE clause for a listing and its arguments.
func listWhere(q domain.ReportQuery) (string, []any) {
	var conds []string
	var args []any

	switch q.Filter {
	case domain.FilterOpen:
		conds = append(conds, "status = 'open'")
	case domain.FilterResolved:
		conds = append(conds, "status = 'resolved'")
	case domain.FilterRanked:
		conds = append(conds, "rank IS NOT NULL AND rank <> 0")
	case domain.FilterEvents:
		conds = append(conds, "event <> ''")
	}

	switch q.Priority {
	case domain.PriorityHigh:
		conds = append(conds, "rank IS NOT NULL AND rank <> 0")
	case domain.PriorityLow:
		conds = append(conds, "(rank IS NULL OR rank = 0)")
	}

	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(description ILIKE $%d OR location_label ILIKE $%d OR reporter_email ILIKE $%d)", n, n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of reports, newest first, and the total matching count.
func (r *ReportRepo) List(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
	where, args := listWhere(q)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM waste_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	n := len(args)
	args = append(args, q.Limit, q.Offset)
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM waste_reports%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		reportColumns, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	reports, err := collectReports(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan reports: %w", err)
	}
	return reports, total, nil
}

// ListOpen returns open reports, newest first.
func (r *ReportRepo) ListOpen(ctx context.Context, limit int) ([]domain.WasteReport, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM waste_reports
		WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list open reports: %w", err)
	}
	return collectReports(rows)
}

// FindOpenNearby returns open reports within radiusMeters using PostGIS ST_DWithin.
func (r *ReportRepo) FindOpenNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.WasteReport, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM waste_reports
		WHERE status = 'open'
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY location <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		LIMIT $4
	`, center.Lon, center.Lat, radiusMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("find open nearby: %w", err)
	}
	return collectReports(rows)
}

// FindOpenNearest returns the limit open reports closest to center using the
// PostGIS KNN operator, regardless of age.
func (r *ReportRepo) FindOpenNearest(ctx context.Context, center domain.Coordinate, limit int) ([]domain.WasteReport, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM waste_reports
		WHERE status = 'open'
		ORDER BY location <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, created_at DESC
		LIMIT $3
	`, center.Lon, center.Lat, limit)
	if err != nil {
		return nil, fmt.Errorf("find open nearest: %w", err)
	}
	return collectReports(rows)
}

// Resolve moves an open report to resolved.
func (r *ReportRepo) Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*domain.WasteReport, error) {
	rep, err := scanReport(r.db.Pool.QueryRow(ctx, `
		UPDATE waste_reports
		SET status = 'resolved', resolved_by = $2, resolved_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'open'
		RETURNING `+reportColumns, id, resolvedBy, at))
	if err == nil {
		return rep, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve report: %w", err)
	}

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM waste_reports WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("resolve report: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return nil, fmt.Errorf("report %s already resolved: %w", id, domain.ErrConflict)
}

// UpdateLocationLabel sets the human-readable location of a report.
func (r *ReportRepo) UpdateLocationLabel(ctx context.Context, id, label string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE waste_reports SET location_label = $2, updated_at = now() WHERE id = $1
	`, id, label)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Authors returns reporter attribution for every report.
func (r *ReportRepo) Authors(ctx context.Context) ([]domain.ReportAuthor, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, user_id, reporter_email FROM waste_reports`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []domain.ReportAuthor
	for rows.Next() {
		var a domain.ReportAuthor
		if err := rows.Scan(&a.ReportID, &a.UserID, &a.Email); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}
