package imaging

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/medicalimaging"
	mitypes "github.com/aws/aws-sdk-go-v2/service/medicalimaging/types"

	"github.com/yourorg/dicom-import/internal/metrics"
)

// ImageSetMetadata is the decoded metadata blob for one image set: the
// patient/study levels plus series and instances keyed by UID.
type ImageSetMetadata struct {
	SchemaVersion json.RawMessage `json:"SchemaVersion,omitempty"`
	DatastoreID   string          `json:"DatastoreID"`
	ImageSetID    string          `json:"ImageSetID"`
	Patient       PatientLevel    `json:"Patient"`
	Study         StudyLevel      `json:"Study"`
}

type PatientLevel struct {
	DICOM DICOMAttrs `json:"DICOM"`
}

type StudyLevel struct {
	DICOM  DICOMAttrs             `json:"DICOM"`
	Series map[string]SeriesLevel `json:"Series"`
}

type SeriesLevel struct {
	DICOM     DICOMAttrs               `json:"DICOM"`
	Instances map[string]InstanceLevel `json:"Instances"`
}

type InstanceLevel struct {
	DICOM       DICOMAttrs   `json:"DICOM"`
	ImageFrames []ImageFrame `json:"ImageFrames"`
}

// ImageFrame carries the frame ID used by GetImageFrame.
type ImageFrame struct {
	ID string `json:"ID"`
}

// DICOMAttrs are the string-valued attributes used for display; the blob
// carries more, which decode ignores.
type DICOMAttrs struct {
	PatientID         string `json:"PatientID,omitempty"`
	PatientName       string `json:"PatientName,omitempty"`
	StudyInstanceUID  string `json:"StudyInstanceUID,omitempty"`
	StudyDate         string `json:"StudyDate,omitempty"`
	StudyDescription  string `json:"StudyDescription,omitempty"`
	SeriesInstanceUID string `json:"SeriesInstanceUID,omitempty"`
	SeriesDescription string `json:"SeriesDescription,omitempty"`
	Modality          string `json:"Modality,omitempty"`
	SOPInstanceUID    string `json:"SOPInstanceUID,omitempty"`
}

// Metadata fetches and decodes the image set metadata blob. versionID may
// be empty for the latest version. The blob arrives gzip-compressed when
// the response says so.
func (c *Client) Metadata(ctx context.Context, imageSetID, versionID string) (*ImageSetMetadata, error) {
	in := &medicalimaging.GetImageSetMetadataInput{
		DatastoreId: aws.String(c.datastoreID),
		ImageSetId:  aws.String(imageSetID),
	}
	if versionID != "" {
		in.VersionId = aws.String(versionID)
	}
	out, err := c.api.GetImageSetMetadata(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("get image set metadata %s: %w", imageSetID, err)
	}
	defer out.ImageSetMetadataBlob.Close()

	var r io.Reader = out.ImageSetMetadataBlob
	if strings.EqualFold(aws.ToString(out.ContentEncoding), "gzip") {
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decode metadata blob %s: %w", imageSetID, err)
		}
		defer gr.Close()
		r = gr
	}

	var md ImageSetMetadata
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode metadata blob %s: %w", imageSetID, err)
	}
	return &md, nil
}

// SeriesInfo is one row of the flattened patient→study→series→instance view.
type SeriesInfo struct {
	SeriesInstanceUID string
	Modality          string
	Description       string
	InstanceUIDs      []string
}

// FlattenSeries returns the series of the study in UID order with their
// instance UIDs, for display and for picking frames deterministically.
func (m *ImageSetMetadata) FlattenSeries() []SeriesInfo {
	uids := make([]string, 0, len(m.Study.Series))
	for uid := range m.Study.Series {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	out := make([]SeriesInfo, 0, len(uids))
	for _, uid := range uids {
		s := m.Study.Series[uid]
		info := SeriesInfo{
			SeriesInstanceUID: uid,
			Modality:          s.DICOM.Modality,
			Description:       s.DICOM.SeriesDescription,
		}
		for iuid := range s.Instances {
			info.InstanceUIDs = append(info.InstanceUIDs, iuid)
		}
		sort.Strings(info.InstanceUIDs)
		out = append(out, info)
	}
	return out
}

// FirstFrameID returns the frame ID of the first instance of the first
// series (UID order), or false when the image set has no frames.
func (m *ImageSetMetadata) FirstFrameID() (string, bool) {
	for _, s := range m.FlattenSeries() {
		series := m.Study.Series[s.SeriesInstanceUID]
		for _, iuid := range s.InstanceUIDs {
			inst := series.Instances[iuid]
			if len(inst.ImageFrames) > 0 {
				return inst.ImageFrames[0].ID, true
			}
		}
	}
	return "", false
}

// GetFrame retrieves one HTJ2K-encoded frame and its content type.
func (c *Client) GetFrame(ctx context.Context, imageSetID, frameID string) ([]byte, string, error) {
	out, err := c.api.GetImageFrame(ctx, &medicalimaging.GetImageFrameInput{
		DatastoreId: aws.String(c.datastoreID),
		ImageSetId:  aws.String(imageSetID),
		ImageFrameInformation: &mitypes.ImageFrameInformation{
			ImageFrameId: aws.String(frameID),
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("get image frame %s/%s: %w", imageSetID, frameID, err)
	}
	defer out.ImageFrameBlob.Close()
	b, err := io.ReadAll(out.ImageFrameBlob)
	if err != nil {
		return nil, "", fmt.Errorf("read image frame %s/%s: %w", imageSetID, frameID, err)
	}
	metrics.FramesFetched.Inc()
	return b, aws.ToString(out.ContentType), nil
}
