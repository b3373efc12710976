package imaging

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/medicalimaging"
	mitypes "github.com/aws/aws-sdk-go-v2/service/medicalimaging/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	datastores []mitypes.DatastoreSummary
	createdID  string

	// statuses are served in order; the last one repeats.
	statuses  []string
	statusIdx int
	message   string

	searchPages [][]mitypes.ImageSetsMetadataSummary
	searchIdx   int
	lastSearch  *medicalimaging.SearchImageSetsInput

	metadataBlob     []byte
	metadataEncoding string

	frameBlob []byte

	startedInput *medicalimaging.StartDICOMImportJobInput
}

func (f *fakeAPI) CreateDatastore(ctx context.Context, in *medicalimaging.CreateDatastoreInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.CreateDatastoreOutput, error) {
	f.createdID = "ds-created"
	return &medicalimaging.CreateDatastoreOutput{
		DatastoreId:     aws.String(f.createdID),
		DatastoreStatus: mitypes.DatastoreStatusCreating,
	}, nil
}

func (f *fakeAPI) ListDatastores(ctx context.Context, in *medicalimaging.ListDatastoresInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.ListDatastoresOutput, error) {
	return &medicalimaging.ListDatastoresOutput{DatastoreSummaries: f.datastores}, nil
}

func (f *fakeAPI) GetDatastore(ctx context.Context, in *medicalimaging.GetDatastoreInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.GetDatastoreOutput, error) {
	return &medicalimaging.GetDatastoreOutput{
		DatastoreProperties: &mitypes.DatastoreProperties{
			DatastoreId:     in.DatastoreId,
			DatastoreName:   aws.String("dicom-import"),
			DatastoreStatus: mitypes.DatastoreStatusActive,
		},
	}, nil
}

func (f *fakeAPI) DeleteDatastore(ctx context.Context, in *medicalimaging.DeleteDatastoreInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.DeleteDatastoreOutput, error) {
	return &medicalimaging.DeleteDatastoreOutput{
		DatastoreId:     in.DatastoreId,
		DatastoreStatus: mitypes.DatastoreStatusDeleting,
	}, nil
}

func (f *fakeAPI) StartDICOMImportJob(ctx context.Context, in *medicalimaging.StartDICOMImportJobInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.StartDICOMImportJobOutput, error) {
	f.startedInput = in
	return &medicalimaging.StartDICOMImportJobOutput{JobId: aws.String("job-1")}, nil
}

func (f *fakeAPI) GetDICOMImportJob(ctx context.Context, in *medicalimaging.GetDICOMImportJobInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.GetDICOMImportJobOutput, error) {
	st := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	props := &mitypes.DICOMImportJobProperties{
		JobId:     in.JobId,
		JobStatus: mitypes.JobStatus(st),
	}
	if f.message != "" {
		props.Message = aws.String(f.message)
	}
	return &medicalimaging.GetDICOMImportJobOutput{JobProperties: props}, nil
}

func (f *fakeAPI) SearchImageSets(ctx context.Context, in *medicalimaging.SearchImageSetsInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.SearchImageSetsOutput, error) {
	f.lastSearch = in
	page := f.searchPages[f.searchIdx]
	out := &medicalimaging.SearchImageSetsOutput{ImageSetsMetadataSummaries: page}
	if f.searchIdx < len(f.searchPages)-1 {
		f.searchIdx++
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeAPI) GetImageSetMetadata(ctx context.Context, in *medicalimaging.GetImageSetMetadataInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.GetImageSetMetadataOutput, error) {
	out := &medicalimaging.GetImageSetMetadataOutput{
		ImageSetMetadataBlob: io.NopCloser(bytes.NewReader(f.metadataBlob)),
		ContentType:          aws.String("application/json"),
	}
	if f.metadataEncoding != "" {
		out.ContentEncoding = aws.String(f.metadataEncoding)
	}
	return out, nil
}

func (f *fakeAPI) GetImageFrame(ctx context.Context, in *medicalimaging.GetImageFrameInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.GetImageFrameOutput, error) {
	return &medicalimaging.GetImageFrameOutput{
		ImageFrameBlob: io.NopCloser(bytes.NewReader(f.frameBlob)),
		ContentType:    aws.String("application/octet-stream"),
	}, nil
}

func (f *fakeAPI) DeleteImageSet(ctx context.Context, in *medicalimaging.DeleteImageSetInput, _ ...func(*medicalimaging.Options)) (*medicalimaging.DeleteImageSetOutput, error) {
	return &medicalimaging.DeleteImageSetOutput{
		DatastoreId:   in.DatastoreId,
		ImageSetId:    in.ImageSetId,
		ImageSetState: mitypes.ImageSetStateDeleted,
	}, nil
}

func TestWaitForImportCompletes(t *testing.T) {
	f := &fakeAPI{statuses: []string{"SUBMITTED", "IN_PROGRESS", "COMPLETED"}}
	c := newWithAPI(f, "ds-1")

	var seen []string
	st, err := c.WaitForImport(context.Background(), "job-1", time.Millisecond, time.Second, func(s JobStatus) {
		seen = append(seen, s.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", st.Status)
	assert.Equal(t, []string{"SUBMITTED", "IN_PROGRESS", "COMPLETED"}, seen)
}

func TestWaitForImportFailure(t *testing.T) {
	for _, terminal := range []string{"FAILED", "COMPLETED_WITH_ERRORS"} {
		f := &fakeAPI{statuses: []string{"IN_PROGRESS", terminal}, message: "bad input"}
		c := newWithAPI(f, "ds-1")

		st, err := c.WaitForImport(context.Background(), "job-1", time.Millisecond, time.Second, nil)
		require.ErrorIs(t, err, ErrImportFailed, "status %s", terminal)
		assert.Equal(t, terminal, st.Status)
		assert.Equal(t, "bad input", st.Message)
	}
}

func TestWaitForImportTimeout(t *testing.T) {
	f := &fakeAPI{statuses: []string{"IN_PROGRESS"}}
	c := newWithAPI(f, "ds-1")

	_, err := c.WaitForImport(context.Background(), "job-1", 5*time.Millisecond, 12*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrWaitTimeout)
}

func TestWaitForImportContextCancel(t *testing.T) {
	f := &fakeAPI{statuses: []string{"IN_PROGRESS"}}
	c := newWithAPI(f, "ds-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.WaitForImport(ctx, "job-1", 50*time.Millisecond, time.Minute, nil)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestStartImportPassesLocations(t *testing.T) {
	f := &fakeAPI{}
	c := newWithAPI(f, "ds-1")

	jobID, err := c.StartImport(context.Background(), "s3://in/organized/", "s3://out/results/", "arn:aws:iam::123:role/import")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	require.NotNil(t, f.startedInput)
	assert.Equal(t, "ds-1", aws.ToString(f.startedInput.DatastoreId))
	assert.Equal(t, "s3://in/organized/", aws.ToString(f.startedInput.InputS3Uri))
	assert.Equal(t, "s3://out/results/", aws.ToString(f.startedInput.OutputS3Uri))
	assert.NotEmpty(t, aws.ToString(f.startedInput.ClientToken))
}

func TestEnsureDatastoreReusesActive(t *testing.T) {
	f := &fakeAPI{datastores: []mitypes.DatastoreSummary{
		{DatastoreId: aws.String("ds-old"), DatastoreStatus: mitypes.DatastoreStatusDeleting},
		{DatastoreId: aws.String("ds-active"), DatastoreStatus: mitypes.DatastoreStatusActive},
	}}
	c := newWithAPI(f, "")

	id, err := c.EnsureDatastore(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "ds-active", id)
	assert.Empty(t, f.createdID, "should not create when an active datastore exists")
}

func TestEnsureDatastoreCreatesWhenNoneActive(t *testing.T) {
	f := &fakeAPI{}
	c := newWithAPI(f, "")

	id, err := c.EnsureDatastore(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "ds-created", id)
	assert.Equal(t, id, c.DatastoreID())
}

func TestGetDatastoreDefaultsToBound(t *testing.T) {
	f := &fakeAPI{}
	c := newWithAPI(f, "ds-1")

	props, err := c.GetDatastore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "ds-1", aws.ToString(props.DatastoreId))
	assert.Equal(t, mitypes.DatastoreStatusActive, props.DatastoreStatus)
}

func TestSearchBuildsCriteriaAndPaginates(t *testing.T) {
	f := &fakeAPI{searchPages: [][]mitypes.ImageSetsMetadataSummary{
		{
			{
				ImageSetId: aws.String("is-1"),
				Version:    aws.Int32(1),
				DICOMTags: &mitypes.DICOMTags{
					DICOMPatientId:        aws.String("PATIENT001"),
					DICOMStudyDate:        aws.String("20240101"),
					DICOMStudyDescription: aws.String("CT CHEST"),
				},
			},
		},
		{
			{ImageSetId: aws.String("is-2"), Version: aws.Int32(2)},
		},
	}}
	c := newWithAPI(f, "ds-1")

	got, err := c.Search(context.Background(), 10, ByPatientID("PATIENT001"), ByStudyDateBetween("20240101", "20240131"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "is-1", got[0].ImageSetID)
	assert.Equal(t, "PATIENT001", got[0].PatientID)
	assert.Equal(t, "CT CHEST", got[0].StudyDescription)
	assert.Equal(t, "is-2", got[1].ImageSetID)

	require.NotNil(t, f.lastSearch.SearchCriteria)
	require.Len(t, f.lastSearch.SearchCriteria.Filters, 2)
	assert.Equal(t, mitypes.OperatorEqual, f.lastSearch.SearchCriteria.Filters[0].Operator)
	assert.Equal(t, mitypes.OperatorBetween, f.lastSearch.SearchCriteria.Filters[1].Operator)
	require.Len(t, f.lastSearch.SearchCriteria.Filters[1].Values, 2)
}

func TestSearchWithoutFiltersOmitsCriteria(t *testing.T) {
	f := &fakeAPI{searchPages: [][]mitypes.ImageSetsMetadataSummary{{}}}
	c := newWithAPI(f, "ds-1")

	_, err := c.Search(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, f.lastSearch.SearchCriteria)
	assert.Equal(t, int32(50), aws.ToInt32(f.lastSearch.MaxResults))
}

const metadataJSON = `{
  "SchemaVersion": "1.1",
  "DatastoreID": "ds-1",
  "ImageSetID": "is-1",
  "Patient": {"DICOM": {"PatientID": "PATIENT001", "PatientName": "DOE^JANE"}},
  "Study": {
    "DICOM": {"StudyInstanceUID": "1.2.3", "StudyDate": "20240101", "StudyDescription": "CT CHEST"},
    "Series": {
      "1.2.3.10": {
        "DICOM": {"Modality": "CT", "SeriesDescription": "AXIAL"},
        "Instances": {
          "1.2.3.10.1": {"DICOM": {"SOPInstanceUID": "1.2.3.10.1"}, "ImageFrames": [{"ID": "frame-a"}]},
          "1.2.3.10.2": {"DICOM": {"SOPInstanceUID": "1.2.3.10.2"}, "ImageFrames": [{"ID": "frame-b"}]}
        }
      },
      "1.2.3.11": {
        "DICOM": {"Modality": "CT"},
        "Instances": {}
      }
    }
  }
}`

func TestMetadataDecodesPlainBlob(t *testing.T) {
	f := &fakeAPI{metadataBlob: []byte(metadataJSON)}
	c := newWithAPI(f, "ds-1")

	md, err := c.Metadata(context.Background(), "is-1", "")
	require.NoError(t, err)
	assert.Equal(t, "PATIENT001", md.Patient.DICOM.PatientID)
	assert.Equal(t, "20240101", md.Study.DICOM.StudyDate)
	require.Len(t, md.Study.Series, 2)

	series := md.FlattenSeries()
	require.Len(t, series, 2)
	assert.Equal(t, "1.2.3.10", series[0].SeriesInstanceUID)
	assert.Equal(t, []string{"1.2.3.10.1", "1.2.3.10.2"}, series[0].InstanceUIDs)
	assert.Equal(t, "CT", series[0].Modality)

	frameID, ok := md.FirstFrameID()
	require.True(t, ok)
	assert.Equal(t, "frame-a", frameID)
}

func TestMetadataDecodesGzipBlob(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte(metadataJSON))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	f := &fakeAPI{metadataBlob: buf.Bytes(), metadataEncoding: "gzip"}
	c := newWithAPI(f, "ds-1")

	md, err := c.Metadata(context.Background(), "is-1", "")
	require.NoError(t, err)
	assert.Equal(t, "is-1", md.ImageSetID)
}

func TestFirstFrameIDEmptySet(t *testing.T) {
	md := &ImageSetMetadata{}
	_, ok := md.FirstFrameID()
	assert.False(t, ok)
}

func TestGetFrame(t *testing.T) {
	f := &fakeAPI{frameBlob: []byte{0xFF, 0x4F, 0xFF, 0x51}} // HTJ2K codestream start
	c := newWithAPI(f, "ds-1")

	b, ct, err := c.GetFrame(context.Background(), "is-1", "frame-a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x4F, 0xFF, 0x51}, b)
	assert.Equal(t, "application/octet-stream", ct)
}

func TestDeleteImageSetAndDatastore(t *testing.T) {
	f := &fakeAPI{}
	c := newWithAPI(f, "ds-1")

	state, err := c.DeleteImageSet(context.Background(), "is-1")
	require.NoError(t, err)
	assert.Equal(t, string(mitypes.ImageSetStateDeleted), state)

	status, err := c.DeleteDatastore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, string(mitypes.DatastoreStatusDeleting), status)
}
