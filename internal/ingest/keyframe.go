package ingest

import (
	"bytes"
	"errors"
	"io"

	"github.com/pion/webrtc/v4/pkg/media/h264reader"

	"github.com/open-beagle/framesink/internal/media"
)

// H.265 IRAP picture range, BLA_W_LP through CRA_NUT
const (
	h265TypeIRAPFirst = 16
	h265TypeIRAPLast  = 21
)

const streamFormatByteStream = "byte-stream"

// isKeyFrame reports whether an access unit holds a random access point.
// Only byte-stream data is scanned; length-prefixed formats (avc, hvc1, hev1)
// use the buffer flags. Without a stream-format the data is scanned when it
// starts with a start code.
func isKeyFrame(codec media.Codec, streamFormat string, data []byte, deltaUnit bool) bool {
	switch {
	case streamFormat == streamFormatByteStream:
	case streamFormat == "" && hasStartCode(data):
	default:
		return !deltaUnit
	}

	var found, ok bool
	switch codec {
	case media.CodecH264:
		found, ok = scanH264(data)
	case media.CodecH265:
		found, ok = scanH265(data)
	}
	if !ok {
		return !deltaUnit
	}
	return found
}

func hasStartCode(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0, 0, 1}) || bytes.HasPrefix(data, []byte{0, 0, 0, 1})
}

// scanH264 looks for an IDR slice; ok is false when no NAL unit was found
func scanH264(data []byte) (found bool, ok bool) {
	reader, err := h264reader.NewReader(bytes.NewReader(data))
	if err != nil {
		return false, false
	}

	units := 0
	for {
		nal, err := reader.NextNAL()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, units > 0
		}
		units++

		if nal.UnitType == h264reader.NalUnitTypeCodedSliceIdr {
			return true, true
		}
	}
	return false, units > 0
}

// scanH265 walks the start codes of an Annex-B access unit and checks each
// two-byte NAL header for an IRAP type; ok is false when no NAL unit was found
func scanH265(data []byte) (found bool, ok bool) {
	units := 0
	for i := 0; i+3 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
			continue
		}
		units++
		i += 3

		// forbidden_zero_bit, nal_unit_type(6), then the layer and temporal ids
		unitType := (data[i] >> 1) & 0x3f
		if unitType >= h265TypeIRAPFirst && unitType <= h265TypeIRAPLast {
			return true, true
		}
	}
	return false, units > 0
}
