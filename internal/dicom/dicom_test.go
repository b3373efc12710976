package dicom

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestHasKnownExtension(t *testing.T) {
	cases := map[string]bool{
		"scan.dcm":              true,
		"uploads/a/b/IM001.DCM": true,
		"x.dicom":               true,
		"x.DICOM":               true,
		"x.dcm.gz":              false,
		"notes.txt":             false,
		"IM001":                 false,
	}
	for key, want := range cases {
		if got := HasKnownExtension(key); got != want {
			t.Fatalf("HasKnownExtension(%q)=%v; want %v", key, got, want)
		}
	}
}

func TestIsMagic(t *testing.T) {
	if !IsMagic([]byte("DICM")) {
		t.Fatal("DICM not recognized")
	}
	if IsMagic([]byte("DICO")) || IsMagic([]byte("DIC")) || IsMagic(nil) {
		t.Fatal("non-magic bytes recognized")
	}
}

// appendExplicit writes an explicit VR little endian element.
func appendExplicit(b []byte, group, elem uint16, vr string, value []byte) []byte {
	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], group)
	binary.LittleEndian.PutUint16(hdr[2:4], elem)
	copy(hdr[4:6], vr)
	b = append(b, hdr[:]...)
	switch vr {
	case "OB", "OW", "OF", "SQ", "UT", "UN":
		b = append(b, 0, 0)
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(value)))
		b = append(b, l[:]...)
	default:
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(value)))
		b = append(b, l[:]...)
	}
	return append(b, value...)
}

// appendImplicit writes an implicit VR little endian element.
func appendImplicit(b []byte, group, elem uint16, value []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint16(hdr[0:2], group)
	binary.LittleEndian.PutUint16(hdr[2:4], elem)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(value)))
	b = append(b, hdr[:]...)
	return append(b, value...)
}

func part10(transferSyntax string, body []byte) []byte {
	b := make([]byte, 128)
	b = append(b, "DICM"...)
	if transferSyntax != "" {
		ts := []byte(transferSyntax)
		if len(ts)%2 == 1 {
			ts = append(ts, 0) // UIDs are even-length padded with NUL
		}
		b = appendExplicit(b, 0x0002, 0x0010, "UI", ts)
	}
	return append(b, body...)
}

func TestParseIdentifiersExplicit(t *testing.T) {
	var body []byte
	body = appendExplicit(body, 0x0008, 0x0018, "UI", []byte("1.2.3.4 "))
	body = appendExplicit(body, 0x0010, 0x0020, "LO", []byte("PATIENT001"))
	body = appendExplicit(body, 0x0020, 0x000D, "UI", []byte("1.2.3\x00"))
	body = appendExplicit(body, 0x0020, 0x000E, "UI", []byte("1.2.3.9"))
	// Pixel data must never be consumed.
	body = appendExplicit(body, 0x7FE0, 0x0010, "OW", bytes.Repeat([]byte{0xAB}, 64))

	id, err := ParseIdentifiers(bytes.NewReader(part10("1.2.840.10008.1.2.1", body)))
	if err != nil {
		t.Fatalf("ParseIdentifiers: %v", err)
	}
	if id.PatientID != "PATIENT001" {
		t.Fatalf("PatientID=%q", id.PatientID)
	}
	if id.StudyInstanceUID != "1.2.3" {
		t.Fatalf("StudyInstanceUID=%q (padding not trimmed?)", id.StudyInstanceUID)
	}
	if id.SeriesInstanceUID != "1.2.3.9" || id.SOPInstanceUID != "1.2.3.4" {
		t.Fatalf("series=%q sop=%q", id.SeriesInstanceUID, id.SOPInstanceUID)
	}
}

func TestParseIdentifiersImplicit(t *testing.T) {
	var body []byte
	body = appendImplicit(body, 0x0008, 0x0018, []byte("9.8.7"))
	body = appendImplicit(body, 0x0010, 0x0020, []byte("P2"))
	body = appendImplicit(body, 0x0020, 0x000D, []byte("9.8"))
	body = appendImplicit(body, 0x0020, 0x000E, []byte("9.8.1"))

	id, err := ParseIdentifiers(bytes.NewReader(part10("1.2.840.10008.1.2", body)))
	if err != nil {
		t.Fatalf("ParseIdentifiers: %v", err)
	}
	if id.PatientID != "P2" || id.StudyInstanceUID != "9.8" || id.SeriesInstanceUID != "9.8.1" || id.SOPInstanceUID != "9.8.7" {
		t.Fatalf("unexpected identifiers: %+v", id)
	}
}

func TestParseIdentifiersStopsAtPixelData(t *testing.T) {
	var body []byte
	body = appendExplicit(body, 0x0010, 0x0020, "LO", []byte("P3"))
	body = appendExplicit(body, 0x7FE0, 0x0010, "OB", bytes.Repeat([]byte{1}, 32))

	r := bytes.NewReader(part10("1.2.840.10008.1.2.1", body))
	id, err := ParseIdentifiers(r)
	if err != nil {
		t.Fatalf("ParseIdentifiers: %v", err)
	}
	if id.PatientID != "P3" {
		t.Fatalf("PatientID=%q", id.PatientID)
	}
	// Study/series/SOP absent; callers substitute placeholders downstream.
	if id.StudyInstanceUID != "" || id.SOPInstanceUID != "" {
		t.Fatalf("expected absent fields to stay empty: %+v", id)
	}
}

func TestParseIdentifiersMissingMagic(t *testing.T) {
	junk := bytes.Repeat([]byte{0x00}, 256)
	if _, err := ParseIdentifiers(bytes.NewReader(junk)); err == nil {
		t.Fatal("expected ErrNotDICOM")
	}
	if _, err := ParseIdentifiers(bytes.NewReader([]byte("short"))); err == nil {
		t.Fatal("expected error on truncated stream")
	}
}

func TestParseIdentifiersRejectsBigEndian(t *testing.T) {
	data := part10("1.2.840.10008.1.2.2", nil)
	if _, err := ParseIdentifiers(bytes.NewReader(data)); err == nil {
		t.Fatal("expected unsupported transfer syntax error")
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		`Patient: John\Doe`: "Patient_ John_Doe",
		`a<b>c"d|e?f*g`:     "a_b_c_d_e_f_g",
		"clean-1.2.3":       "clean-1.2.3",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestDestinationKey(t *testing.T) {
	id := Identifiers{
		PatientID:         "PATIENT001",
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.4",
		SOPInstanceUID:    "1.2.3.4.5",
	}
	got := DestinationKey("organized", id)
	want := "organized/PATIENT001/1.2.3/1.2.3.4/1.2.3.4.5.dcm"
	if got != want {
		t.Fatalf("DestinationKey=%q; want %q", got, want)
	}

	// Placeholders for absent fields, sanitization applied per segment.
	got = DestinationKey("organized", Identifiers{PatientID: `P:1|2`})
	want = "organized/P_1_2/Unknown_Study/Unknown_Series/Unknown_Instance.dcm"
	if got != want {
		t.Fatalf("DestinationKey=%q; want %q", got, want)
	}

	// Empty prefix yields no leading slash.
	got = DestinationKey("", id)
	want = "PATIENT001/1.2.3/1.2.3.4/1.2.3.4.5.dcm"
	if got != want {
		t.Fatalf("DestinationKey=%q; want %q", got, want)
	}
}
