package dicom

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotDICOM indicates the stream lacks the DICM marker at offset 128.
	ErrNotDICOM = errors.New("not a DICOM part 10 stream")
	// ErrUnsupportedTransferSyntax indicates a transfer syntax this reader
	// does not walk (big endian, deflated).
	ErrUnsupportedTransferSyntax = errors.New("unsupported transfer syntax")
)

const (
	uidImplicitVRLittleEndian = "1.2.840.10008.1.2"
	uidExplicitVRBigEndian    = "1.2.840.10008.1.2.2"
	uidDeflatedLittleEndian   = "1.2.840.10008.1.2.1.99"

	undefinedLength = 0xFFFFFFFF
)

type tag struct{ group, elem uint16 }

var (
	tagTransferSyntax   = tag{0x0002, 0x0010}
	tagSOPInstanceUID   = tag{0x0008, 0x0018}
	tagPatientID        = tag{0x0010, 0x0020}
	tagStudyInstanceUID = tag{0x0020, 0x000D}
	tagSeriesInstance   = tag{0x0020, 0x000E}
	tagPixelData        = tag{0x7FE0, 0x0010}
)

// Identifiers are the four hierarchy fields used to place an instance.
// Absent fields are empty strings; key building substitutes placeholders.
type Identifiers struct {
	PatientID         string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
}

func (id Identifiers) complete() bool {
	return id.PatientID != "" && id.StudyInstanceUID != "" &&
		id.SeriesInstanceUID != "" && id.SOPInstanceUID != ""
}

// ParseIdentifiers walks the leading data set of a DICOM Part 10 stream and
// returns the hierarchy identifiers. It never reads past the pixel data
// element (7FE0,0010); callers can hand it the whole object body and only
// the header bytes are consumed.
func ParseIdentifiers(r io.Reader) (Identifiers, error) {
	br := bufio.NewReaderSize(r, 32*1024)

	head := make([]byte, MagicOffset+MagicLength)
	if _, err := io.ReadFull(br, head); err != nil {
		return Identifiers{}, ErrNotDICOM
	}
	if !IsMagic(head[MagicOffset:]) {
		return Identifiers{}, ErrNotDICOM
	}

	// File meta group (0002,xxxx) is always explicit VR little endian.
	ts, err := parseFileMeta(br)
	if err != nil {
		return Identifiers{}, err
	}
	explicit := true
	switch ts {
	case uidImplicitVRLittleEndian:
		explicit = false
	case uidExplicitVRBigEndian, uidDeflatedLittleEndian:
		return Identifiers{}, fmt.Errorf("%w: %s", ErrUnsupportedTransferSyntax, ts)
	}

	var id Identifiers
	wanted := map[tag]*string{
		tagSOPInstanceUID:   &id.SOPInstanceUID,
		tagPatientID:        &id.PatientID,
		tagStudyInstanceUID: &id.StudyInstanceUID,
		tagSeriesInstance:   &id.SeriesInstanceUID,
	}

	for {
		t, length, err := readElementHeader(br, explicit)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return id, nil // truncated header stream; keep what we have
			}
			return id, err
		}
		if t == tagPixelData {
			return id, nil
		}
		if length == undefinedLength {
			// Sequences with undefined length start after every tag this
			// reader wants; stop rather than track item delimiters.
			return id, nil
		}
		if dst, ok := wanted[t]; ok {
			buf := make([]byte, length)
			if _, err := io.ReadFull(br, buf); err != nil {
				return id, nil
			}
			*dst = strings.TrimRight(string(buf), " \x00")
			if id.complete() {
				return id, nil
			}
			continue
		}
		if _, err := io.CopyN(io.Discard, br, int64(length)); err != nil {
			return id, nil
		}
	}
}

// parseFileMeta consumes group 0002 elements and returns the transfer
// syntax UID, defaulting to explicit little endian when the element is
// missing.
func parseFileMeta(br *bufio.Reader) (string, error) {
	ts := ""
	for {
		peek, err := br.Peek(2)
		if err != nil {
			return ts, nil
		}
		if binary.LittleEndian.Uint16(peek) != 0x0002 {
			return ts, nil
		}
		t, length, err := readElementHeader(br, true)
		if err != nil {
			return ts, err
		}
		if length == undefinedLength {
			return ts, fmt.Errorf("file meta element (%04X,%04X) has undefined length", t.group, t.elem)
		}
		if t == tagTransferSyntax {
			buf := make([]byte, length)
			if _, err := io.ReadFull(br, buf); err != nil {
				return ts, err
			}
			ts = strings.TrimRight(string(buf), " \x00")
			continue
		}
		if _, err := io.CopyN(io.Discard, br, int64(length)); err != nil {
			return ts, err
		}
	}
}

// readElementHeader reads one element header in little-endian byte order.
// Explicit VR uses the two-byte length form except for the long VRs
// (OB, OW, OF, SQ, UT, UN) which carry a 4-byte length after 2 reserved
// bytes. Implicit VR always carries a 4-byte length.
func readElementHeader(br *bufio.Reader, explicit bool) (tag, uint32, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return tag{}, 0, err
	}
	t := tag{
		group: binary.LittleEndian.Uint16(hdr[0:2]),
		elem:  binary.LittleEndian.Uint16(hdr[2:4]),
	}
	if !explicit {
		return t, binary.LittleEndian.Uint32(hdr[4:8]), nil
	}
	vr := string(hdr[4:6])
	switch vr {
	case "OB", "OW", "OF", "SQ", "UT", "UN":
		var long [4]byte
		if _, err := io.ReadFull(br, long[:]); err != nil {
			return t, 0, err
		}
		return t, binary.LittleEndian.Uint32(long[:]), nil
	default:
		return t, uint32(binary.LittleEndian.Uint16(hdr[6:8])), nil
	}
}
