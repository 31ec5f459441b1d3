package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/pkg/metrics"
)

const (
	maxDescriptionLen = 2000
	maxImages         = 10
	reportsGenKey     = "reports:gen"
	reportListTTL     = 30
)

// NewReport is the input for filing a report.
type NewReport struct {
	UserID        string
	Email         string
	Description   string
	Location      domain.Coordinate
	LocationLabel string
	Rank          *int
	Event         string
	ImageURLs     []string
}

// ReportService handles waste report business logic.
type ReportService struct {
	reports   ports.ReportRepository
	publisher ports.EventPublisher
	cache     ports.CacheService
	now       func() time.Time
}

// NewReportService creates a new ReportService. publisher and cache may be nil.
func NewReportService(reports ports.ReportRepository, publisher ports.EventPublisher, cache ports.CacheService) *ReportService {
	return &ReportService{reports: reports, publisher: publisher, cache: cache, now: time.Now}
}

// Create validates and stores a new open report, then announces it.
func (s *ReportService) Create(ctx context.Context, in NewReport) (*domain.WasteReport, error) {
	if err := in.Location.Validate(); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if len(desc) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", domain.ErrValidation, maxDescriptionLen)
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: reporter is required", domain.ErrValidation)
	}
	if len(in.ImageURLs) > maxImages {
		return nil, fmt.Errorf("%w: at most %d images", domain.ErrValidation, maxImages)
	}
	images := make([]string, 0, len(in.ImageURLs))
	for _, raw := range in.ImageURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid image url %q", domain.ErrValidation, raw)
		}
		images = append(images, raw)
	}

	now := s.now().UTC()
	report := &domain.WasteReport{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		ReporterEmail: in.Email,
		Description:   desc,
		Location:      in.Location,
		LocationLabel: strings.TrimSpace(in.LocationLabel),
		Status:        domain.StatusOpen,
		Rank:          in.Rank,
		Event:         strings.TrimSpace(in.Event),
		ImageURLs:     images,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	metrics.ReportsCreated.Inc()
	s.invalidate(ctx)
	s.publish(ctx, &domain.ReportEvent{
		Type:      domain.EventReportCreated,
		ReportID:  report.ID,
		Status:    report.Status,
		Location:  report.Location,
		Label:     report.LocationLabel,
		ActorID:   report.UserID,
		Timestamp: now,
	})
	return report, nil
}

// GetByID returns a report by ID.
func (s *ReportService) GetByID(ctx context.Context, id string) (*domain.WasteReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("report %q: %w", id, domain.ErrNotFound)
	}
	return s.reports.GetByID(ctx, id)
}

type reportPage struct {
	Reports []domain.WasteReport `json:"reports"`
	Total   int                  `json:"total"`
}

// List returns a page of reports, newest first, and the total count.
func (s *ReportService) List(ctx context.Context, q domain.ReportQuery) ([]domain.WasteReport, int, error) {
	if q.Filter == "" {
		q.Filter = domain.FilterAll
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Search = strings.TrimSpace(q.Search)

	cacheKey := ""
	if s.cache != nil {
		cacheKey = fmt.Sprintf("reports:list:%s:%s:%s:%s:%d:%d",
			s.generation(ctx), q.Filter, q.Priority, url.QueryEscape(q.Search), q.Limit, q.Offset)
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var page reportPage
			if err := json.Unmarshal(data, &page); err == nil {
				return page.Reports, page.Total, nil
			}
		}
	}

	reports, total, err := s.reports.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(reportPage{Reports: reports, Total: total}); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, reportListTTL)
		}
	}
	return reports, total, nil
}

// Resolve marks an open report as resolved by the given collector.
func (s *ReportService) Resolve(ctx context.Context, id, collectorID string) (*domain.WasteReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("report %q: %w", id, domain.ErrNotFound)
	}
	now := s.now().UTC()
	report, err := s.reports.Resolve(ctx, id, collectorID, now)
	if err != nil {
		return nil, err
	}

	metrics.ReportsResolved.Inc()
	s.invalidate(ctx)
	s.publish(ctx, &domain.ReportEvent{
		Type:      domain.EventReportResolved,
		ReportID:  report.ID,
		Status:    report.Status,
		Location:  report.Location,
		Label:     report.LocationLabel,
		ActorID:   collectorID,
		Timestamp: now,
	})
	return report, nil
}

// ApplyLocationLabel stores a resolved address for a report and announces it.
func (s *ReportService) ApplyLocationLabel(ctx context.Context, id, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("%w: label is required", domain.ErrValidation)
	}
	if err := s.reports.UpdateLocationLabel(ctx, id, label); err != nil {
		return fmt.Errorf("update label: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// PublishLabelled announces that a report's location label is now known.
func (s *ReportService) PublishLabelled(ctx context.Context, id string) error {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishReportEvent(ctx, &domain.ReportEvent{
		Type:      domain.EventReportLabelled,
		ReportID:  report.ID,
		Status:    report.Status,
		Location:  report.Location,
		Label:     report.LocationLabel,
		Timestamp: s.now().UTC(),
	})
}

func (s *ReportService) publish(ctx context.Context, event *domain.ReportEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReportEvent(ctx, event); err != nil {
		slog.WarnContext(ctx, "publish report event failed",
			"type", event.Type, "report_id", event.ReportID, "error", err)
	}
}

// generation returns the current list cache generation. Bumping it orphans every cached page.
func (s *ReportService) generation(ctx context.Context) string {
	if data, err := s.cache.Get(ctx, reportsGenKey); err == nil && len(data) > 0 {
		return string(data)
	}
	return "0"
}

func (s *ReportService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, reportsGenKey, []byte(uuid.NewString()), 0); err != nil {
		slog.WarnContext(ctx, "invalidate report cache failed", "error", err)
	}
	for _, key := range []string{adminMetricsKey, "admin:heatmap:true", "admin:heatmap:false"} {
		_ = s.cache.Delete(ctx, key)
	}
}
