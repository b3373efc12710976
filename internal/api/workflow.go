package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"

	"github.com/yourorg/dicom-import/internal/config"
	"github.com/yourorg/dicom-import/internal/types"
)

type WorkflowHandler struct {
	temporalClient client.Client
	cfg            config.Pipeline
	taskQueue      string
}

func NewWorkflowHandler(temporalClient client.Client, cfg config.Pipeline, taskQueue string) *WorkflowHandler {
	return &WorkflowHandler{temporalClient: temporalClient, cfg: cfg, taskQueue: taskQueue}
}

type StartImportRequest struct {
	// All fields optional; environment config provides the defaults.
	SourcePrefix string `json:"source_prefix"`
	TargetPrefix string `json:"target_prefix"`
	DatastoreID  string `json:"datastore_id"`
	SummaryURI   string `json:"summary_uri"`
	PollInterval string `json:"poll_interval"` // Go duration, e.g. "30s"
	MaxWait      string `json:"max_wait"`      // Go duration, e.g. "1h"
}

type StartImportResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// StartImportWorkflow kicks off the organize-then-import workflow.
func (h *WorkflowHandler) StartImportWorkflow(c *gin.Context) {
	var req StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := h.cfg
	if req.SourcePrefix != "" {
		cfg.SourcePrefix = req.SourcePrefix
	}
	if req.TargetPrefix != "" {
		cfg.TargetPrefix = req.TargetPrefix
	}
	if req.DatastoreID != "" {
		cfg.DatastoreID = req.DatastoreID
	}
	if cfg.DatastoreID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "datastore_id is required (env DI_DATASTORE_ID or request body)"})
		return
	}

	params := types.PipelineParams{
		Organize: types.OrganizeParams{
			SourceBucket:  cfg.SourceBucket,
			SourcePrefix:  cfg.SourcePrefix,
			TargetBucket:  cfg.TargetBucket,
			TargetPrefix:  cfg.TargetPrefix,
			SeenCachePath: cfg.SeenCachePath,
		},
		Import: types.ImportParams{
			DatastoreID:       cfg.DatastoreID,
			InputS3URI:        cfg.InputS3URI(),
			OutputS3URI:       cfg.OutputS3URI(),
			DataAccessRoleARN: cfg.DataAccessRoleARN,
		},
		PollInterval: parseDuration(req.PollInterval, cfg.PollInterval),
		MaxWait:      parseDuration(req.MaxWait, cfg.MaxWait),
		SummaryURI:   req.SummaryURI,
	}

	options := client.StartWorkflowOptions{TaskQueue: h.taskQueue}
	run, err := h.temporalClient.ExecuteWorkflow(c.Request.Context(), options, "DicomImportWorkflow", params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start workflow: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, StartImportResponse{WorkflowID: run.GetID(), RunID: run.GetRunID()})
}

// GetWorkflowStatus reports a running workflow's status, or its result
// once completed.
func (h *WorkflowHandler) GetWorkflowStatus(c *gin.Context) {
	workflowID := c.Param("id")
	if workflowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow ID is required"})
		return
	}

	run := h.temporalClient.GetWorkflow(c.Request.Context(), workflowID, "")

	var result types.PipelineResult
	if err := run.Get(c.Request.Context(), &result); err != nil {
		describe, descErr := h.temporalClient.DescribeWorkflowExecution(c.Request.Context(), workflowID, "")
		if descErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to describe workflow: " + descErr.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"workflow_id": workflowID,
			"status":      describe.WorkflowExecutionInfo.Status.String(),
			"start_time":  describe.WorkflowExecutionInfo.StartTime,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": workflowID,
		"status":      "COMPLETED",
		"result":      result,
	})
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
