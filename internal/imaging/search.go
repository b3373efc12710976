package imaging

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/medicalimaging"
	mitypes "github.com/aws/aws-sdk-go-v2/service/medicalimaging/types"
)

// Filter is one search criterion over image set attributes.
type Filter struct {
	op     mitypes.Operator
	values []mitypes.SearchByAttributeValue
}

// ByPatientID matches image sets with the given DICOM patient ID.
func ByPatientID(id string) Filter {
	return Filter{
		op: mitypes.OperatorEqual,
		values: []mitypes.SearchByAttributeValue{
			&mitypes.SearchByAttributeValueMemberDICOMPatientId{Value: id},
		},
	}
}

// ByStudyInstanceUID matches a single study by UID.
func ByStudyInstanceUID(uid string) Filter {
	return Filter{
		op: mitypes.OperatorEqual,
		values: []mitypes.SearchByAttributeValue{
			&mitypes.SearchByAttributeValueMemberDICOMStudyInstanceUID{Value: uid},
		},
	}
}

// ByStudyDate matches studies on one date (DICOM DA form, YYYYMMDD).
func ByStudyDate(date string) Filter {
	return Filter{
		op: mitypes.OperatorEqual,
		values: []mitypes.SearchByAttributeValue{
			studyDateValue(date),
		},
	}
}

// ByStudyDateBetween matches studies within [start,end] (YYYYMMDD).
func ByStudyDateBetween(start, end string) Filter {
	return Filter{
		op: mitypes.OperatorBetween,
		values: []mitypes.SearchByAttributeValue{
			studyDateValue(start),
			studyDateValue(end),
		},
	}
}

func studyDateValue(date string) mitypes.SearchByAttributeValue {
	return &mitypes.SearchByAttributeValueMemberDICOMStudyDateAndTime{
		Value: mitypes.DICOMStudyDateAndTime{DICOMStudyDate: aws.String(date)},
	}
}

// ImageSetSummary is a flattened view of one search hit.
type ImageSetSummary struct {
	ImageSetID       string
	Version          int32
	PatientID        string
	StudyInstanceUID string
	StudyDate        string
	StudyDescription string
	CreatedAt        time.Time
}

// Search queries image sets in the bound datastore. With no filters it
// lists everything up to maxResults (capped server-side at 50 per page;
// pagination is followed until maxResults is reached).
func (c *Client) Search(ctx context.Context, maxResults int32, filters ...Filter) ([]ImageSetSummary, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	in := &medicalimaging.SearchImageSetsInput{
		DatastoreId: aws.String(c.datastoreID),
		MaxResults:  aws.Int32(min32(maxResults, 50)),
	}
	if len(filters) > 0 {
		criteria := &mitypes.SearchCriteria{}
		for _, f := range filters {
			criteria.Filters = append(criteria.Filters, mitypes.SearchFilter{
				Operator: f.op,
				Values:   f.values,
			})
		}
		in.SearchCriteria = criteria
	}

	var out []ImageSetSummary
	for {
		page, err := c.api.SearchImageSets(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("search image sets: %w", err)
		}
		for _, s := range page.ImageSetsMetadataSummaries {
			out = append(out, summarize(s))
			if len(out) == int(maxResults) {
				return out, nil
			}
		}
		if page.NextToken == nil {
			return out, nil
		}
		in.NextToken = page.NextToken
	}
}

func summarize(s mitypes.ImageSetsMetadataSummary) ImageSetSummary {
	out := ImageSetSummary{
		ImageSetID: aws.ToString(s.ImageSetId),
		Version:    aws.ToInt32(s.Version),
	}
	if s.CreatedAt != nil {
		out.CreatedAt = *s.CreatedAt
	}
	if tags := s.DICOMTags; tags != nil {
		out.PatientID = aws.ToString(tags.DICOMPatientId)
		out.StudyInstanceUID = aws.ToString(tags.DICOMStudyInstanceUID)
		out.StudyDate = aws.ToString(tags.DICOMStudyDate)
		out.StudyDescription = aws.ToString(tags.DICOMStudyDescription)
	}
	return out
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
