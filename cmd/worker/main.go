package main

import (
	"context"
	"log"
	"os"
	"strings"

	tactivity "go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/yourorg/dicom-import/internal/activities"
	"github.com/yourorg/dicom-import/internal/imaging"
	dimetrics "github.com/yourorg/dicom-import/internal/metrics"
	"github.com/yourorg/dicom-import/internal/storage"
	"github.com/yourorg/dicom-import/internal/workflow"
)

func main() {
	// Support both TEMPORAL_TARGET_HOST and TEMPORAL_ADDRESS for compatibility
	taddr := getenv("TEMPORAL_TARGET_HOST", getenv("TEMPORAL_ADDRESS", "localhost:7233"))
	ns := getenv("TEMPORAL_NAMESPACE", "default")
	q := getenv("TEMPORAL_TASK_QUEUE", "dicom-import")

	// Structured logger (zap)
	zl := newZap(getenv("LOG_LEVEL", "info"))
	defer zl.Sync()

	// Metrics server
	dimetrics.Init()
	go func() {
		addr := dimetrics.AddrFromEnv()
		_ = dimetrics.Serve(addr)
	}()

	ctx := context.Background()
	s3c, err := storage.NewS3(ctx)
	if err != nil {
		log.Fatal("s3 init:", err)
	}
	img, err := imaging.New(ctx, os.Getenv("DI_DATASTORE_ID"), zl)
	if err != nil {
		log.Fatal("healthimaging init:", err)
	}

	c, err := client.Dial(client.Options{HostPort: taddr, Namespace: ns})
	if err != nil {
		log.Fatal("temporal client:", err)
	}
	defer c.Close()

	w := worker.New(c, q, worker.Options{})
	acts := activities.New(activities.Config{Store: s3c, Imaging: img, Logger: zl})
	// Register activities with explicit names matching workflow.ExecuteActivity calls
	w.RegisterActivityWithOptions(acts.Organize, tactivity.RegisterOptions{Name: "Activities.Organize"})
	w.RegisterActivityWithOptions(acts.StartImport, tactivity.RegisterOptions{Name: "Activities.StartImport"})
	w.RegisterActivityWithOptions(acts.PollImport, tactivity.RegisterOptions{Name: "Activities.PollImport"})
	w.RegisterActivityWithOptions(acts.VerifyImport, tactivity.RegisterOptions{Name: "Activities.VerifyImport"})
	w.RegisterActivityWithOptions(acts.WriteSummary, tactivity.RegisterOptions{Name: "Activities.WriteSummary"})
	w.RegisterWorkflow(workflow.DicomImportWorkflow)

	zl.Info("worker started", zap.String("namespace", ns), zap.String("taskQueue", q), zap.String("metrics", getenv("METRICS_ADDR", ":9090")))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker failed:", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func newZap(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
