package main

import (
	"context"
	"errors"
	"log"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/dicom-import/internal/config"
	"github.com/yourorg/dicom-import/internal/imaging"
	"github.com/yourorg/dicom-import/internal/iopkg"
	"github.com/yourorg/dicom-import/internal/organize"
	"github.com/yourorg/dicom-import/internal/storage"
	"github.com/yourorg/dicom-import/internal/types"
)

// pipeline runs the full organize-then-import flow once, end to end:
// organize the source prefix, import the organized tree into a
// HealthImaging datastore, then exercise search, metadata and frame
// retrieval against the result.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zl := newZap(cfg.LogLevel)
	defer zl.Sync()

	ctx := context.Background()

	store, err := storage.NewS3(ctx)
	if err != nil {
		zl.Fatal("s3 init failed", zap.Error(err))
	}

	// Organize pass
	org := organize.New(store, zl)
	res, err := org.Run(ctx, types.OrganizeParams{
		SourceBucket:  cfg.SourceBucket,
		SourcePrefix:  cfg.SourcePrefix,
		TargetBucket:  cfg.TargetBucket,
		TargetPrefix:  cfg.TargetPrefix,
		SeenCachePath: cfg.SeenCachePath,
	})
	if err != nil {
		zl.Fatal("organize pass failed", zap.Error(err))
	}
	zl.Info("organize pass done",
		zap.Int("scanned", res.Scanned),
		zap.Int("organized", res.Organized),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))

	structure, err := org.Structure(ctx, cfg.TargetBucket, cfg.TargetPrefix)
	if err != nil {
		zl.Fatal("list organized structure failed", zap.Error(err))
	}
	for _, patient := range structure.Patients() {
		for _, study := range structure.Studies(patient) {
			zl.Info("organized study",
				zap.String("patient", patient),
				zap.String("study", study),
				zap.Int("series", len(structure[patient][study])))
		}
	}

	// Import into HealthImaging
	img, err := imaging.New(ctx, cfg.DatastoreID, zl)
	if err != nil {
		zl.Fatal("healthimaging init failed", zap.Error(err))
	}
	datastoreID, err := img.EnsureDatastore(ctx, cfg.DatastoreName)
	if err != nil {
		zl.Fatal("ensure datastore failed", zap.Error(err))
	}
	zl.Info("datastore ready", zap.String("datastoreId", datastoreID))

	jobID, err := img.StartImport(ctx, cfg.InputS3URI(), cfg.OutputS3URI(), cfg.DataAccessRoleARN)
	if err != nil {
		zl.Fatal("start import failed", zap.Error(err))
	}
	st, err := img.WaitForImport(ctx, jobID, cfg.PollInterval, cfg.MaxWait, nil)
	if err != nil {
		if errors.Is(err, imaging.ErrImportFailed) || errors.Is(err, imaging.ErrWaitTimeout) {
			zl.Fatal("import did not complete",
				zap.String("jobId", jobID),
				zap.String("status", st.Status),
				zap.String("message", st.Message))
		}
		zl.Fatal("import wait failed", zap.Error(err))
	}

	// Search the imported image sets
	sets, err := img.Search(ctx, 50)
	if err != nil {
		zl.Fatal("search failed", zap.Error(err))
	}
	zl.Info("image sets after import", zap.Int("count", len(sets)))
	if len(sets) == 0 {
		zl.Warn("no image sets found after import; nothing to retrieve")
		return
	}

	first := sets[0]
	byPatient, err := img.Search(ctx, 50, imaging.ByPatientID(first.PatientID))
	if err != nil {
		zl.Error("search by patient failed", zap.Error(err))
	} else {
		zl.Info("image sets for patient",
			zap.String("patientId", first.PatientID),
			zap.Int("count", len(byPatient)))
	}
	if first.StudyDate != "" {
		byDate, err := img.Search(ctx, 50, imaging.ByStudyDateBetween(first.StudyDate, first.StudyDate))
		if err != nil {
			zl.Error("search by study date failed", zap.Error(err))
		} else {
			zl.Info("image sets for study date",
				zap.String("studyDate", first.StudyDate),
				zap.Int("count", len(byDate)))
		}
	}

	// Metadata and a sample frame from the first hit
	md, err := img.Metadata(ctx, first.ImageSetID, "")
	if err != nil {
		zl.Fatal("get metadata failed", zap.Error(err))
	}
	for _, s := range md.FlattenSeries() {
		zl.Info("series",
			zap.String("imageSetId", first.ImageSetID),
			zap.String("seriesUid", s.SeriesInstanceUID),
			zap.String("modality", s.Modality),
			zap.String("description", s.Description),
			zap.Int("instances", len(s.InstanceUIDs)))
	}

	frameID, ok := md.FirstFrameID()
	if !ok {
		zl.Warn("image set has no image frames", zap.String("imageSetId", first.ImageSetID))
		return
	}
	frame, contentType, err := img.GetFrame(ctx, first.ImageSetID, frameID)
	if err != nil {
		zl.Fatal("get image frame failed", zap.Error(err))
	}
	zl.Info("fetched image frame",
		zap.String("frameId", frameID),
		zap.String("contentType", contentType),
		zap.Int("bytes", len(frame)))
	if cfg.FrameOutURI != "" {
		if err := iopkg.WriteBytes(cfg.FrameOutURI, frame); err != nil {
			zl.Error("write frame failed", zap.String("uri", cfg.FrameOutURI), zap.Error(err))
		} else {
			zl.Info("wrote frame", zap.String("uri", cfg.FrameOutURI))
		}
	}

	zl.Info("pipeline complete",
		zap.Int("organized", res.Organized),
		zap.String("datastoreId", datastoreID),
		zap.String("jobStatus", st.Status),
		zap.Int("imageSets", len(sets)))
}

func newZap(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
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
