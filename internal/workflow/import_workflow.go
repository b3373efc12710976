package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yourorg/dicom-import/internal/types"
)

// DicomImportWorkflow organizes the source prefix, submits a HealthImaging
// import job over the organized layout, polls it to a terminal status, and
// verifies the datastore answers searches afterwards.
func DicomImportWorkflow(ctx workflow.Context, p types.PipelineParams) (types.PipelineResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// The poll activity heartbeats once per status read, which can be up
	// to the poll interval apart; give it a wider heartbeat window.
	pollAO := ao
	pollAO.HeartbeatTimeout = 5 * time.Minute
	pollAO.RetryPolicy = &temporal.RetryPolicy{
		InitialInterval:    5 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumAttempts:    1, // the poll loop already bounds its own lifetime
	}
	pollCtx := workflow.WithActivityOptions(ctx, pollAO)

	var res types.PipelineResult
	if err := workflow.ExecuteActivity(ctx, "Activities.Organize", p.Organize).Get(ctx, &res.Organize); err != nil {
		return types.PipelineResult{}, err
	}

	var jobID string
	if err := workflow.ExecuteActivity(ctx, "Activities.StartImport", p.Import).Get(ctx, &jobID); err != nil {
		return res, err
	}

	pp := types.PollParams{
		DatastoreID: p.Import.DatastoreID,
		JobID:       jobID,
		Interval:    p.PollInterval,
		MaxWait:     p.MaxWait,
	}
	if err := workflow.ExecuteActivity(pollCtx, "Activities.PollImport", pp).Get(ctx, &res.Import); err != nil {
		return res, err
	}

	vp := types.VerifyParams{DatastoreID: p.Import.DatastoreID, MaxResults: 10}
	if err := workflow.ExecuteActivity(ctx, "Activities.VerifyImport", vp).Get(ctx, &res.ImageSets); err != nil {
		return res, err
	}

	if p.SummaryURI != "" {
		sp := types.SummaryParams{URI: p.SummaryURI, Result: res}
		if err := workflow.ExecuteActivity(ctx, "Activities.WriteSummary", sp).Get(ctx, nil); err != nil {
			return res, err
		}
	}
	return res, nil
}
