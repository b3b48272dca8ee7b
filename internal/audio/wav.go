package audio

import (
	"bytes"
	"encoding/binary"
)

const formatPCM = 1

// canonical 44-byte RIFF/WAVE header.
type wavHeader struct {
	RIFF          [4]byte
	RIFFSize      uint32
	WAVE          [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// Encode serializes w with a canonical header. Zero fields default to mono
// 16-bit PCM at the recognition sample rate.
func (w WAV) Encode() []byte {
	if w.Format == 0 {
		w.Format = formatPCM
	}
	if w.Channels <= 0 {
		w.Channels = 1
	}
	if w.BitsPerSample <= 0 {
		w.BitsPerSample = 16
	}
	if w.SampleRate <= 0 {
		w.SampleRate = RecognitionSampleRate
	}
	block := w.Channels * w.BitsPerSample / 8
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize:      uint32(36 + len(w.Data)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        w.Format,
		Channels:      uint16(w.Channels),
		SampleRate:    uint32(w.SampleRate),
		ByteRate:      uint32(w.SampleRate * block),
		BlockAlign:    uint16(block),
		BitsPerSample: uint16(w.BitsPerSample),
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(w.Data)),
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(w.Data))
	_ = binary.Write(&buf, binary.LittleEndian, h)
	buf.Write(w.Data)
	return buf.Bytes()
}

// EncodeWAVPCM16LE wraps mono PCM16LE samples in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	return WAV{Channels: 1, SampleRate: sampleRate, BitsPerSample: 16, Data: pcm}.Encode(), nil
}
