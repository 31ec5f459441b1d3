package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/environmenttech/wastewatch/internal/core/domain"
)

// TaskQueue is the default queue the intake worker polls.
const TaskQueue = "report-intake"

// ReportIntakeInput is the input for the report intake workflow.
type ReportIntakeInput struct {
	ReportID string
	Lat      float64
	Lon      float64
	Label    string
}

// WorkflowID is unique per report so a redelivered created event does not
// start a second intake.
func (in ReportIntakeInput) WorkflowID() string {
	return "report-intake-" + in.ReportID
}

// ReportIntakeWorkflow labels a freshly filed report with its street address
// and announces the label. When the geocoder gives up the coordinate label is
// stored instead, so every report ends up with a label.
func ReportIntakeWorkflow(ctx workflow.Context, input ReportIntakeInput) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting report intake", "reportID", input.ReportID)

	if input.Label != "" {
		logger.Info("Report already labelled, nothing to do", "reportID", input.ReportID)
		return input.Label, nil
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: resolve the address
	at := domain.Coordinate{Lat: input.Lat, Lon: input.Lon}
	var label string
	err := workflow.ExecuteActivity(ctx, "ReverseGeocode", input.Lat, input.Lon).Get(ctx, &label)
	if err != nil || label == "" {
		logger.Warn("reverse geocode failed, using coordinate label", "error", err)
		label = at.Label()
	}

	// Step 2: store it
	err = workflow.ExecuteActivity(ctx, "ApplyLocationLabel", input.ReportID, label).Get(ctx, nil)
	if err != nil {
		return "", err
	}

	// Step 3: announce it. The label is already stored, so a lost event is only logged.
	err = workflow.ExecuteActivity(ctx, "PublishReportLabelled", input.ReportID).Get(ctx, nil)
	if err != nil {
		logger.Warn("publish labelled event failed", "error", err)
	}

	logger.Info("Report labelled", "reportID", input.ReportID, "label", label)
	return label, nil
}
