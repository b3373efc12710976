package types

import "time"

// OrganizeParams describes one organize pass over the source prefix.
type OrganizeParams struct {
	SourceBucket string `json:"source_bucket"`
	SourcePrefix string `json:"source_prefix"`
	TargetBucket string `json:"target_bucket"` // defaults to SourceBucket when empty
	TargetPrefix string `json:"target_prefix"`
	// Optional path of a badger cache used to skip source keys organized
	// by an earlier run. Empty disables resume.
	SeenCachePath string `json:"seen_cache_path,omitempty"`
}

// OrganizeResult summarizes an organize pass.
type OrganizeResult struct {
	Scanned   int      `json:"scanned"`
	Organized int      `json:"organized"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ImportParams describes a HealthImaging DICOM import job submission.
type ImportParams struct {
	DatastoreID       string `json:"datastore_id"`
	InputS3URI        string `json:"input_s3_uri"`
	OutputS3URI       string `json:"output_s3_uri"`
	DataAccessRoleARN string `json:"data_access_role_arn"`
}

// ImportStatus is returned by the poll activity once the job reaches a
// terminal status.
type ImportStatus struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PipelineParams drives the full organize-then-import workflow.
type PipelineParams struct {
	Organize OrganizeParams `json:"organize"`
	Import   ImportParams   `json:"import"`
	// PollInterval/MaxWait bound the import poll; zero values take the
	// client defaults (30s / 1h).
	PollInterval time.Duration `json:"poll_interval,omitempty"`
	MaxWait      time.Duration `json:"max_wait,omitempty"`
	// SummaryURI, when set, receives a JSON run summary (file:// or s3://).
	SummaryURI string `json:"summary_uri,omitempty"`
}

// PipelineResult is the workflow's final report.
type PipelineResult struct {
	Organize  OrganizeResult `json:"organize"`
	Import    ImportStatus   `json:"import"`
	ImageSets int            `json:"image_sets"`
}

// VerifyParams asks the verify activity to count image sets post-import.
type VerifyParams struct {
	DatastoreID string `json:"datastore_id"`
	MaxResults  int32  `json:"max_results"`
}

// PollParams bounds one import poll activity run.
type PollParams struct {
	DatastoreID string        `json:"datastore_id"`
	JobID       string        `json:"job_id"`
	Interval    time.Duration `json:"interval,omitempty"`
	MaxWait     time.Duration `json:"max_wait,omitempty"`
}

// SummaryParams tells the summary activity where to write the run report.
type SummaryParams struct {
	URI    string         `json:"uri"`
	Result PipelineResult `json:"result"`
}
