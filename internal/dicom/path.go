package dicom

import "strings"

// Placeholder segments used when an identifier is absent from the header.
const (
	UnknownPatient  = "Unknown_Patient"
	UnknownStudy    = "Unknown_Study"
	UnknownSeries   = "Unknown_Series"
	UnknownInstance = "Unknown_Instance"
)

var sanitizer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
	`\`, "_",
)

// Sanitize replaces characters invalid in S3 keys and file paths with '_'.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// DestinationKey builds the canonical object key for an instance:
// {prefix}/{patient}/{study}/{series}/{instance}.dcm with sanitized
// segments and placeholder substitution for absent fields. The extension
// is always .dcm regardless of the source key.
func DestinationKey(prefix string, id Identifiers) string {
	patient := segment(id.PatientID, UnknownPatient)
	study := segment(id.StudyInstanceUID, UnknownStudy)
	series := segment(id.SeriesInstanceUID, UnknownSeries)
	instance := segment(id.SOPInstanceUID, UnknownInstance)

	parts := []string{patient, study, series, instance + ".dcm"}
	if prefix != "" {
		parts = append([]string{strings.TrimSuffix(prefix, "/")}, parts...)
	}
	return strings.Join(parts, "/")
}

func segment(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return Sanitize(v)
}
