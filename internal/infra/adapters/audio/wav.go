package audio

import (
	"encoding/binary"
	"errors"

	"voice-companion/internal/domain/model"
)

var (
	errWAVNeedsTranscode = errors.New("wav is not pcm16 mono 24 kHz")
	errWAVMalformed      = errors.New("malformed wav")
)

// unwrapWAV returns the data chunk of a RIFF/WAVE file already in the
// target layout. Any other layout yields errWAVNeedsTranscode.
func unwrapWAV(b []byte) ([]byte, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, errWAVMalformed
	}
	var (
		fmtOK bool
		pos   = 12
	)
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(b) {
			// streaming writers leave the data size unset
			if id == "data" && fmtOK {
				return b[body:], nil
			}
			return nil, errWAVMalformed
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errWAVMalformed
			}
			audioFmt := binary.LittleEndian.Uint16(b[body:])
			channels := binary.LittleEndian.Uint16(b[body+2:])
			rate := binary.LittleEndian.Uint32(b[body+4:])
			bits := binary.LittleEndian.Uint16(b[body+14:])
			if audioFmt != 1 || channels != model.PCMChannels || rate != model.PCMSampleRate || bits != model.PCMBitDepth {
				return nil, errWAVNeedsTranscode
			}
			fmtOK = true
		case "data":
			if !fmtOK {
				return nil, errWAVMalformed
			}
			return b[body : body+size], nil
		}
		pos = body + size + size%2
	}
	return nil, errWAVMalformed
}
