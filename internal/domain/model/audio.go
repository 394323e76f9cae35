package model

import (
	"bytes"
	"encoding/binary"
)

const (
	PCMSampleRate = 24000
	PCMChannels   = 1
	PCMBitDepth   = 16
)

// PCM is signed 16-bit little-endian mono audio at PCMSampleRate.
type PCM struct {
	Data []byte
}

func (p PCM) Empty() bool { return len(p.Data) == 0 }

// Duration in milliseconds.
func (p PCM) DurationMs() int {
	bytesPerSec := PCMSampleRate * PCMChannels * PCMBitDepth / 8
	return len(p.Data) * 1000 / bytesPerSec
}

// WAV wraps the samples in a canonical 44-byte RIFF header.
func (p PCM) WAV() []byte {
	var b bytes.Buffer
	dataLen := uint32(len(p.Data))
	blockAlign := uint16(PCMChannels * PCMBitDepth / 8)
	byteRate := uint32(PCMSampleRate) * uint32(blockAlign)

	b.Grow(44 + len(p.Data))
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, 36+dataLen)
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(PCMChannels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(PCMSampleRate))
	_ = binary.Write(&b, binary.LittleEndian, byteRate)
	_ = binary.Write(&b, binary.LittleEndian, blockAlign)
	_ = binary.Write(&b, binary.LittleEndian, uint16(PCMBitDepth))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, dataLen)
	b.Write(p.Data)
	return b.Bytes()
}
