// Package imaging wraps the AWS HealthImaging API surface used by the
// pipeline: datastore lifecycle, DICOM import jobs, image set search and
// retrieval.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/medicalimaging"
	mitypes "github.com/aws/aws-sdk-go-v2/service/medicalimaging/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/dicom-import/internal/metrics"
)

// Poll defaults matching the operational envelope of a typical import.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultMaxWait      = time.Hour
)

// Job statuses compared as strings: JobStatus is an open string enum and
// COMPLETED_WITH_ERRORS is a terminal value the generated constants do not
// declare.
const (
	statusCompleted           = "COMPLETED"
	statusFailed              = "FAILED"
	statusCompletedWithErrors = "COMPLETED_WITH_ERRORS"
)

var (
	// ErrImportFailed indicates the job reached a terminal failure status.
	ErrImportFailed = errors.New("import job failed")
	// ErrWaitTimeout indicates the job did not reach a terminal status
	// within the maximum wait.
	ErrWaitTimeout = errors.New("import job wait timed out")
)

// api is the subset of the HealthImaging client used here; allows test fakes.
type api interface {
	CreateDatastore(ctx context.Context, params *medicalimaging.CreateDatastoreInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.CreateDatastoreOutput, error)
	ListDatastores(ctx context.Context, params *medicalimaging.ListDatastoresInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.ListDatastoresOutput, error)
	GetDatastore(ctx context.Context, params *medicalimaging.GetDatastoreInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.GetDatastoreOutput, error)
	DeleteDatastore(ctx context.Context, params *medicalimaging.DeleteDatastoreInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.DeleteDatastoreOutput, error)
	StartDICOMImportJob(ctx context.Context, params *medicalimaging.StartDICOMImportJobInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.StartDICOMImportJobOutput, error)
	GetDICOMImportJob(ctx context.Context, params *medicalimaging.GetDICOMImportJobInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.GetDICOMImportJobOutput, error)
	SearchImageSets(ctx context.Context, params *medicalimaging.SearchImageSetsInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.SearchImageSetsOutput, error)
	GetImageSetMetadata(ctx context.Context, params *medicalimaging.GetImageSetMetadataInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.GetImageSetMetadataOutput, error)
	GetImageFrame(ctx context.Context, params *medicalimaging.GetImageFrameInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.GetImageFrameOutput, error)
	DeleteImageSet(ctx context.Context, params *medicalimaging.DeleteImageSetInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.DeleteImageSetOutput, error)
}

type Client struct {
	api         api
	datastoreID string
	log         *zap.Logger
}

// New creates a HealthImaging client bound to datastoreID (may be empty
// until EnsureDatastore or SetDatastore picks one). Env: AWS_REGION.
func New(ctx context.Context, datastoreID string, logger *zap.Logger) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:         medicalimaging.NewFromConfig(cfg),
		datastoreID: datastoreID,
		log:         logger,
	}, nil
}

func newWithAPI(a api, datastoreID string) *Client {
	return &Client{api: a, datastoreID: datastoreID, log: zap.NewNop()}
}

// DatastoreID returns the bound datastore.
func (c *Client) DatastoreID() string { return c.datastoreID }

// SetDatastore rebinds the client to another datastore.
func (c *Client) SetDatastore(id string) { c.datastoreID = id }

// CreateDatastore creates a datastore and returns its ID.
func (c *Client) CreateDatastore(ctx context.Context, name string) (string, error) {
	out, err := c.api.CreateDatastore(ctx, &medicalimaging.CreateDatastoreInput{
		DatastoreName: aws.String(name),
		ClientToken:   aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", fmt.Errorf("create datastore %q: %w", name, err)
	}
	return aws.ToString(out.DatastoreId), nil
}

// ListDatastores returns all datastore summaries, following pagination.
func (c *Client) ListDatastores(ctx context.Context) ([]mitypes.DatastoreSummary, error) {
	var out []mitypes.DatastoreSummary
	in := &medicalimaging.ListDatastoresInput{}
	for {
		page, err := c.api.ListDatastores(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list datastores: %w", err)
		}
		out = append(out, page.DatastoreSummaries...)
		if page.NextToken == nil {
			return out, nil
		}
		in.NextToken = page.NextToken
	}
}

// GetDatastore fetches one datastore's properties; an empty ID means the
// bound datastore.
func (c *Client) GetDatastore(ctx context.Context, datastoreID string) (*mitypes.DatastoreProperties, error) {
	if datastoreID == "" {
		datastoreID = c.datastoreID
	}
	out, err := c.api.GetDatastore(ctx, &medicalimaging.GetDatastoreInput{
		DatastoreId: aws.String(datastoreID),
	})
	if err != nil {
		return nil, fmt.Errorf("get datastore %s: %w", datastoreID, err)
	}
	return out.DatastoreProperties, nil
}

// EnsureDatastore binds the client to the first ACTIVE datastore, creating
// one with the given name when none exists.
func (c *Client) EnsureDatastore(ctx context.Context, name string) (string, error) {
	if c.datastoreID != "" {
		return c.datastoreID, nil
	}
	stores, err := c.ListDatastores(ctx)
	if err != nil {
		return "", err
	}
	for _, ds := range stores {
		if ds.DatastoreStatus == mitypes.DatastoreStatusActive {
			c.datastoreID = aws.ToString(ds.DatastoreId)
			c.log.Info("using existing datastore", zap.String("datastoreId", c.datastoreID))
			return c.datastoreID, nil
		}
	}
	id, err := c.CreateDatastore(ctx, name)
	if err != nil {
		return "", err
	}
	c.datastoreID = id
	c.log.Info("created datastore", zap.String("datastoreId", id))
	return id, nil
}

// DeleteDatastore deletes the datastore (must be empty) and returns the
// resulting status string.
func (c *Client) DeleteDatastore(ctx context.Context, datastoreID string) (string, error) {
	if datastoreID == "" {
		datastoreID = c.datastoreID
	}
	out, err := c.api.DeleteDatastore(ctx, &medicalimaging.DeleteDatastoreInput{
		DatastoreId: aws.String(datastoreID),
	})
	if err != nil {
		return "", fmt.Errorf("delete datastore %s (must be empty): %w", datastoreID, err)
	}
	return string(out.DatastoreStatus), nil
}

// DeleteImageSet permanently deletes an image set and returns its state.
func (c *Client) DeleteImageSet(ctx context.Context, imageSetID string) (string, error) {
	out, err := c.api.DeleteImageSet(ctx, &medicalimaging.DeleteImageSetInput{
		DatastoreId: aws.String(c.datastoreID),
		ImageSetId:  aws.String(imageSetID),
	})
	if err != nil {
		return "", fmt.Errorf("delete image set %s: %w", imageSetID, err)
	}
	return string(out.ImageSetState), nil
}

// StartImport submits a DICOM import job over the organized prefix and
// returns the job ID.
func (c *Client) StartImport(ctx context.Context, inputS3URI, outputS3URI, roleARN string) (string, error) {
	out, err := c.api.StartDICOMImportJob(ctx, &medicalimaging.StartDICOMImportJobInput{
		DatastoreId:       aws.String(c.datastoreID),
		InputS3Uri:        aws.String(inputS3URI),
		OutputS3Uri:       aws.String(outputS3URI),
		DataAccessRoleArn: aws.String(roleARN),
		ClientToken:       aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", fmt.Errorf("start import job: %w", err)
	}
	jobID := aws.ToString(out.JobId)
	c.log.Info("started import job", zap.String("jobId", jobID), zap.String("input", inputS3URI))
	return jobID, nil
}

// JobStatus is a point-in-time view of an import job.
type JobStatus struct {
	JobID   string
	Status  string
	Message string
}

// Terminal reports whether the status ends the poll loop.
func (s JobStatus) Terminal() bool {
	switch s.Status {
	case statusCompleted, statusFailed, statusCompletedWithErrors:
		return true
	}
	return false
}

// ImportJobStatus fetches the current job properties.
func (c *Client) ImportJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	out, err := c.api.GetDICOMImportJob(ctx, &medicalimaging.GetDICOMImportJobInput{
		DatastoreId: aws.String(c.datastoreID),
		JobId:       aws.String(jobID),
	})
	if err != nil {
		return JobStatus{}, fmt.Errorf("get import job %s: %w", jobID, err)
	}
	props := out.JobProperties
	if props == nil {
		return JobStatus{}, fmt.Errorf("get import job %s: empty job properties", jobID)
	}
	return JobStatus{
		JobID:   jobID,
		Status:  string(props.JobStatus),
		Message: aws.ToString(props.Message),
	}, nil
}

// WaitForImport polls the job at interval until it reaches a terminal
// status or maxWait elapses. Success only on COMPLETED; FAILED and
// COMPLETED_WITH_ERRORS return ErrImportFailed with the final status
// attached, a deadline returns ErrWaitTimeout. onPoll, when non-nil, runs
// after every status read (used for activity heartbeats).
func (c *Client) WaitForImport(ctx context.Context, jobID string, interval, maxWait time.Duration, onPoll func(JobStatus)) (JobStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	deadline := time.Now().Add(maxWait)
	for {
		st, err := c.ImportJobStatus(ctx, jobID)
		if err != nil {
			return JobStatus{}, err
		}
		metrics.ImportPolls.Inc()
		if onPoll != nil {
			onPoll(st)
		}
		switch st.Status {
		case statusCompleted:
			c.log.Info("import job completed", zap.String("jobId", jobID))
			return st, nil
		case statusFailed, statusCompletedWithErrors:
			c.log.Warn("import job ended unsuccessfully",
				zap.String("jobId", jobID), zap.String("status", st.Status), zap.String("message", st.Message))
			return st, fmt.Errorf("%w: status %s", ErrImportFailed, st.Status)
		}
		if time.Now().Add(interval).After(deadline) {
			return st, fmt.Errorf("%w after %s (last status %s)", ErrWaitTimeout, maxWait, st.Status)
		}
		c.log.Debug("import job pending", zap.String("jobId", jobID), zap.String("status", st.Status))
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(interval):
		}
	}
}
