package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/ports"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
)

// IntakeActivities holds the activity implementations for the intake workflow.
type IntakeActivities struct {
	Reports  *usecases.ReportService
	Geocoder ports.ReverseGeocoder
}

// ReverseGeocode returns the street address of a coordinate.
func (a *IntakeActivities) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	at := domain.Coordinate{Lat: lat, Lon: lon}
	if err := at.Validate(); err != nil {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), "InvalidCoordinate", err)
	}
	if a.Geocoder == nil {
		return at.Label(), nil
	}
	label, err := a.Geocoder.Reverse(ctx, at)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	return label, nil
}

// ApplyLocationLabel stores the label on the report.
func (a *IntakeActivities) ApplyLocationLabel(ctx context.Context, reportID, label string) error {
	err := a.Reports.ApplyLocationLabel(ctx, reportID, label)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidReport", err)
	case err != nil:
		return fmt.Errorf("apply label to %s: %w", reportID, err)
	}
	return nil
}

// PublishReportLabelled emits the report.labelled event.
func (a *IntakeActivities) PublishReportLabelled(ctx context.Context, reportID string) error {
	if err := a.Reports.PublishLabelled(ctx, reportID); err != nil {
		return fmt.Errorf("publish labelled %s: %w", reportID, err)
	}
	return nil
}
