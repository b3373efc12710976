package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/yourorg/dicom-import/internal/imaging"
	"github.com/yourorg/dicom-import/internal/iopkg"
	"github.com/yourorg/dicom-import/internal/organize"
	"github.com/yourorg/dicom-import/internal/storage"
	"github.com/yourorg/dicom-import/internal/types"
)

type Config struct {
	Store   storage.ObjectStore
	Imaging *imaging.Client
	Logger  *zap.Logger
}

type Activities struct {
	cfg Config
}

func New(cfg Config) *Activities {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Activities{cfg: cfg}
}

// Organize runs one organize pass, heartbeating as the listing progresses.
func (a *Activities) Organize(ctx context.Context, p types.OrganizeParams) (types.OrganizeResult, error) {
	org := organize.New(a.cfg.Store, a.cfg.Logger)
	org.OnProgress(func(scanned int) {
		if scanned%100 == 0 {
			activity.RecordHeartbeat(ctx, scanned)
		}
	})
	return org.Run(ctx, p)
}

// StartImport binds the imaging client to the datastore and submits the
// import job, returning the job ID.
func (a *Activities) StartImport(ctx context.Context, p types.ImportParams) (string, error) {
	a.cfg.Imaging.SetDatastore(p.DatastoreID)
	return a.cfg.Imaging.StartImport(ctx, p.InputS3URI, p.OutputS3URI, p.DataAccessRoleARN)
}

// PollImport waits for the job's terminal status, heartbeating on every
// status read so the server knows the activity is alive between polls.
func (a *Activities) PollImport(ctx context.Context, p types.PollParams) (types.ImportStatus, error) {
	a.cfg.Imaging.SetDatastore(p.DatastoreID)
	st, err := a.cfg.Imaging.WaitForImport(ctx, p.JobID, p.Interval, p.MaxWait, func(s imaging.JobStatus) {
		activity.RecordHeartbeat(ctx, s.Status)
	})
	out := types.ImportStatus{JobID: st.JobID, Status: st.Status, Message: st.Message}
	return out, err
}

// VerifyImport counts the image sets visible after import.
func (a *Activities) VerifyImport(ctx context.Context, p types.VerifyParams) (int, error) {
	a.cfg.Imaging.SetDatastore(p.DatastoreID)
	sets, err := a.cfg.Imaging.Search(ctx, p.MaxResults)
	if err != nil {
		return 0, err
	}
	return len(sets), nil
}

// WriteSummary writes the final run report to a file:// or s3:// URI.
func (a *Activities) WriteSummary(ctx context.Context, p types.SummaryParams) error {
	a.cfg.Logger.Info("writing run summary", zap.String("uri", p.URI))
	return iopkg.WriteJSON(p.URI, p.Result)
}
