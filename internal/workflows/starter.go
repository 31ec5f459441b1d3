package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// WorkflowStarter is the part of client.Client the starter needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Starter turns report.created events into intake runs. Without a Temporal
// client the intake steps run inline on the consumer goroutine.
type Starter struct {
	Client     WorkflowStarter
	TaskQueue  string
	Activities *IntakeActivities
}

// HandleReportEvent is an EventSubscriber handler. Events other than
// report.created are acknowledged and ignored.
func (s *Starter) HandleReportEvent(ctx context.Context, event *domain.ReportEvent) error {
	if event.Type != domain.EventReportCreated {
		return nil
	}
	in := ReportIntakeInput{
		ReportID: event.ReportID,
		Lat:      event.Location.Lat,
		Lon:      event.Location.Lon,
		Label:    event.Label,
	}

	if s.Client == nil {
		return s.runInline(ctx, in)
	}

	queue := s.TaskQueue
	if queue == "" {
		queue = TaskQueue
	}
	run, err := s.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        in.WorkflowID(),
		TaskQueue: queue,
	}, ReportIntakeWorkflow, in)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	switch {
	case errors.As(err, &started):
		slog.DebugContext(ctx, "intake already running", "report_id", in.ReportID)
		return nil
	case err != nil:
		return fmt.Errorf("start intake for %s: %w", in.ReportID, err)
	}
	slog.InfoContext(ctx, "intake started", "report_id", in.ReportID, "run_id", run.GetRunID())
	return nil
}

func (s *Starter) runInline(ctx context.Context, in ReportIntakeInput) error {
	if in.Label != "" || s.Activities == nil {
		return nil
	}
	label, err := s.Activities.ReverseGeocode(ctx, in.Lat, in.Lon)
	if err != nil || label == "" {
		slog.WarnContext(ctx, "reverse geocode failed, using coordinate label", "report_id", in.ReportID, "error", err)
		label = domain.Coordinate{Lat: in.Lat, Lon: in.Lon}.Label()
	}
	if err := s.Activities.ApplyLocationLabel(ctx, in.ReportID, label); err != nil {
		return err
	}
	if err := s.Activities.PublishReportLabelled(ctx, in.ReportID); err != nil {
		slog.WarnContext(ctx, "publish labelled event failed", "report_id", in.ReportID, "error", err)
	}
	return nil
}
