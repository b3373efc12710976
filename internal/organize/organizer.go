// Package organize moves DICOM objects from an unstructured S3 prefix into
// the canonical patient/study/series/instance layout.
package organize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/dicom-import/internal/dicom"
	"github.com/yourorg/dicom-import/internal/metrics"
	"github.com/yourorg/dicom-import/internal/storage"
	"github.com/yourorg/dicom-import/internal/types"
)

type Organizer struct {
	store    storage.ObjectStore
	log      *zap.Logger
	progress func(scanned int)
}

func New(store storage.ObjectStore, logger *zap.Logger) *Organizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Organizer{store: store, log: logger}
}

// OnProgress installs a callback invoked with the running scan count; used
// for activity heartbeats.
func (o *Organizer) OnProgress(fn func(scanned int)) {
	o.progress = fn
}

// Run lists the source prefix, classifies each object, and copies DICOM
// instances to their destination keys. Per-object failures are logged,
// counted, and do not stop the pass.
func (o *Organizer) Run(ctx context.Context, p types.OrganizeParams) (types.OrganizeResult, error) {
	targetBucket := p.TargetBucket
	if targetBucket == "" {
		targetBucket = p.SourceBucket
	}

	seen, err := openSeenCache(p.SeenCachePath)
	if err != nil {
		return types.OrganizeResult{}, fmt.Errorf("open seen cache: %w", err)
	}
	defer seen.Close()

	var res types.OrganizeResult
	err = o.store.List(ctx, p.SourceBucket, p.SourcePrefix, func(key string) error {
		res.Scanned++
		metrics.ObjectsScanned.Inc()
		if o.progress != nil {
			o.progress(res.Scanned)
		}

		if seen.Has(key) {
			res.Skipped++
			metrics.ObjectsSkipped.Inc()
			return nil
		}
		if !o.isDICOM(ctx, p.SourceBucket, key) {
			res.Skipped++
			metrics.ObjectsSkipped.Inc()
			return nil
		}

		destKey, err := o.organizeOne(ctx, p.SourceBucket, key, targetBucket, p.TargetPrefix)
		if err != nil {
			res.Failed++
			metrics.OrganizeErrors.Inc()
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", key, err))
			o.log.Error("organize failed", zap.String("key", key), zap.Error(err))
			return nil
		}
		res.Organized++
		metrics.ObjectsOrganized.Inc()
		if err := seen.Mark(key); err != nil {
			o.log.Warn("seen cache write failed", zap.String("key", key), zap.Error(err))
		}
		o.log.Info("organized", zap.String("from", key), zap.String("to", destKey))
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("list %s/%s: %w", p.SourceBucket, p.SourcePrefix, err)
	}
	o.log.Info("organize pass complete",
		zap.Int("scanned", res.Scanned), zap.Int("organized", res.Organized),
		zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))
	return res, nil
}

// isDICOM classifies by extension first, falling back to the DICM marker
// probe (a 4-byte ranged read at offset 128). Probe errors classify the
// object as non-DICOM, like any other unreadable candidate.
func (o *Organizer) isDICOM(ctx context.Context, bucket, key string) bool {
	if dicom.HasKnownExtension(key) {
		return true
	}
	b, err := o.store.GetRange(ctx, bucket, key, dicom.MagicOffset, dicom.MagicOffset+dicom.MagicLength-1)
	if err != nil {
		return false
	}
	return dicom.IsMagic(b)
}

func (o *Organizer) organizeOne(ctx context.Context, srcBucket, srcKey, dstBucket, dstPrefix string) (string, error) {
	body, _, err := o.store.Get(ctx, srcBucket, srcKey)
	if err != nil {
		return "", fmt.Errorf("get: %w", err)
	}
	// ParseIdentifiers stops before pixel data; the rest of the body is
	// never downloaded past the reader's buffer.
	id, perr := dicom.ParseIdentifiers(body)
	_ = body.Close()
	if perr != nil {
		return "", fmt.Errorf("parse header: %w", perr)
	}

	destKey := dicom.DestinationKey(dstPrefix, id)
	if err := o.store.Copy(ctx, srcBucket, srcKey, dstBucket, destKey); err != nil {
		return "", fmt.Errorf("copy to %s: %w", destKey, err)
	}
	return destKey, nil
}

// Structure maps patient → study → unique series, in key order.
type Structure map[string]map[string][]string

// Structure lists the organized prefix and reconstructs the hierarchy.
func (o *Organizer) Structure(ctx context.Context, bucket, prefix string) (Structure, error) {
	var keys []string
	err := o.store.List(ctx, bucket, prefix, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	return BuildStructure(keys), nil
}

// BuildStructure groups flat destination keys
// (.../{patient}/{study}/{series}/{instance}.dcm) into a
// patient→study→series tree with no duplicate series per study. Keys with
// fewer than four segments are ignored.
func BuildStructure(keys []string) Structure {
	s := make(Structure)
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) < 4 {
			continue
		}
		patient := parts[len(parts)-4]
		study := parts[len(parts)-3]
		series := parts[len(parts)-2]

		if s[patient] == nil {
			s[patient] = make(map[string][]string)
		}
		if !contains(s[patient][study], series) {
			s[patient][study] = append(s[patient][study], series)
		}
	}
	return s
}

// Patients returns patient IDs in sorted order for stable display.
func (s Structure) Patients() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Studies returns a patient's study IDs in sorted order.
func (s Structure) Studies(patient string) []string {
	out := make([]string, 0, len(s[patient]))
	for st := range s[patient] {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
