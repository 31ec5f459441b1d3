package domain

import (
	"fmt"
	"math"
	"time"
)

// ReportStatus is the lifecycle state of a waste report.
type ReportStatus string

const (
	StatusOpen     ReportStatus = "open"
	StatusResolved ReportStatus = "resolved"
)

// Priority is derived from a report's rank marker.
type Priority string

const (
	PriorityHigh Priority = "High"
	PriorityLow  Priority = "Low"
)

// WasteReport is a geotagged report of a waste hotspot.
type WasteReport struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	ReporterEmail string       `json:"reporter_email,omitempty"`
	Description   string       `json:"description"`
	Location      Coordinate   `json:"location"`
	LocationLabel string       `json:"location_label,omitempty"`
	Status        ReportStatus `json:"status"`
	Rank          *int         `json:"rank,omitempty"`
	Event         string       `json:"event,omitempty"`
	ImageURLs     []string     `json:"image_urls"`
	ResolvedBy    string       `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Priority is High for ranked reports, Low otherwise.
func (r *WasteReport) Priority() Priority {
	if r.Rank != nil && *r.Rank != 0 {
		return PriorityHigh
	}
	return PriorityLow
}

// ReportFilter selects which reports a listing returns.
type ReportFilter string

const (
	FilterAll      ReportFilter = "all"
	FilterOpen     ReportFilter = "open"
	FilterResolved ReportFilter = "resolved"
	FilterRanked   ReportFilter = "ranked"
	FilterEvents   ReportFilter = "events"
)

// ParseReportFilter returns the filter for s, or an error for unknown values. Empty means all.
func ParseReportFilter(s string) (ReportFilter, error) {
	switch f := ReportFilter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterOpen, FilterResolved, FilterRanked, FilterEvents:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrValidation, s)
	}
}

// ReportQuery bundles listing parameters.
type ReportQuery struct {
	Filter   ReportFilter
	Priority Priority
	Search   string
	Limit    int
	Offset   int
}

// ProximityEstimate is the straight-line distance and rough drive time to a report.
type ProximityEstimate struct {
	DistanceKm float64 `json:"distance_km"`
	Minutes    int     `json:"minutes"`
}

// RankedReport pairs a report with its estimate. Estimate is nil until an origin is known.
type RankedReport struct {
	Report   WasteReport        `json:"report"`
	Estimate *ProximityEstimate `json:"estimate"`
}

// SortDistance is the ranking key; reports without an estimate sort as +Inf.
func (r RankedReport) SortDistance() float64 {
	if r.Estimate == nil {
		return math.Inf(1)
	}
	return r.Estimate.DistanceKm
}

// RouteSummary is the ephemeral result of one route resolution.
type RouteSummary struct {
	Origin          Coordinate        `json:"origin"`
	Destination     Coordinate        `json:"destination"`
	Path            []Coordinate      `json:"path"`
	DistanceMeters  float64           `json:"distance_meters"`
	DurationSeconds float64           `json:"duration_seconds"`
	Available       bool              `json:"available"`
	Fallback        bool              `json:"fallback"`
	FallbackReason  GeolocationReason `json:"fallback_reason,omitempty"`
}

// DistanceKm is the route length in kilometres rounded to 2 decimals.
func (r RouteSummary) DistanceKm() float64 {
	return math.Round(r.DistanceMeters/1000*100) / 100
}

// DurationMinutes is the drive time in whole minutes.
func (r RouteSummary) DurationMinutes() int {
	return int(math.Round(r.DurationSeconds / 60))
}

// DistanceText renders e.g. "12.34 km", or "" when unavailable.
func (r RouteSummary) DistanceText() string {
	if !r.Available {
		return ""
	}
	return fmt.Sprintf("%.2f km", r.DistanceKm())
}

// DurationText renders e.g. "25 mins", or "" when unavailable.
func (r RouteSummary) DurationText() string {
	if !r.Available {
		return ""
	}
	return fmt.Sprintf("%d mins", r.DurationMinutes())
}

// ReportMetrics are the admin dashboard counters.
type ReportMetrics struct {
	Total                  int     `json:"total"`
	Unresolved             int     `json:"unresolved"`
	Resolved               int     `json:"resolved"`
	AvgResolutionTimeHours float64 `json:"avg_resolution_time_hours"`
}

// HeatPoint is a weighted heatmap sample.
type HeatPoint struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Weight float64 `json:"weight"`
}

// MonthlyCount is the number of reports created in a calendar month ("2006-01").
type MonthlyCount struct {
	Month   string `json:"month"`
	Reports int    `json:"reports"`
}

// AreaCount is the number of reports sharing a location label.
type AreaCount struct {
	Area  string `json:"area"`
	Count int    `json:"count"`
}

// LeaderboardEntry is a reporter and the number of reports they filed.
type LeaderboardEntry struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	Reports int    `json:"reports"`
	Rank    int    `json:"rank"`
}

// ReportEvent is broadcast when a report is created, resolved or labelled.
type ReportEvent struct {
	Type      string       `json:"type"`
	ReportID  string       `json:"report_id"`
	Status    ReportStatus `json:"status"`
	Location  Coordinate   `json:"location"`
	Label     string       `json:"label,omitempty"`
	ActorID   string       `json:"actor_id,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Report event types.
const (
	EventReportCreated  = "report.created"
	EventReportResolved = "report.resolved"
	EventReportLabelled = "report.labelled"
)

// PositionFix is a device position report tied to the time it was captured.
type PositionFix struct {
	Coordinate
	AccuracyMeters float64   `json:"accuracy_m,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
	Error          string    `json:"error,omitempty"`
}

// PositionOptions mirrors the device geolocation request parameters.
type PositionOptions struct {
	HighAccuracy bool          `json:"high_accuracy"`
	Timeout      time.Duration `json:"timeout"`
	MaxAge       time.Duration `json:"max_age"`
}

// ReportAuthor is the reporter attribution of a single report.
type ReportAuthor struct {
	ReportID string
	UserID   string
	Email    string
}
