package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// WAV is a parsed RIFF/WAVE PCM buffer.
type WAV struct {
	Format        uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

// Duration reports the playback length of the data chunk.
func (w WAV) Duration() time.Duration {
	frameBytes := w.Channels * w.BitsPerSample / 8
	if frameBytes <= 0 || w.SampleRate <= 0 {
		return 0
	}
	frames := len(w.Data) / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}

// DecodeWAV parses the fmt and data chunks of a WAV buffer. Only 16-bit PCM is accepted.
func DecodeWAV(data []byte) (WAV, error) {
	if len(data) < 12 {
		return WAV{}, fmt.Errorf("wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAV{}, fmt.Errorf("unsupported wav header")
	}

	var (
		out     WAV
		haveFmt bool
		pcm     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return WAV{}, fmt.Errorf("invalid wav chunk size")
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return WAV{}, fmt.Errorf("invalid wav fmt chunk")
			}
			out.Format = binary.LittleEndian.Uint16(chunk[0:2])
			out.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			out.BitsPerSample = int(binary.LittleEndian.Uint16(chunk[14:16]))
			haveFmt = true
		case "data":
			pcm = append(pcm[:0], chunk...)
		}
		off += size
		if size%2 == 1 {
			off++
		}
	}
	if !haveFmt {
		return WAV{}, fmt.Errorf("wav fmt chunk missing")
	}
	if out.Format != 1 {
		return WAV{}, fmt.Errorf("unsupported wav audio format %d", out.Format)
	}
	if out.BitsPerSample != 16 {
		return WAV{}, fmt.Errorf("unsupported wav bits_per_sample %d", out.BitsPerSample)
	}
	if out.Channels == 0 {
		return WAV{}, fmt.Errorf("invalid wav channels=0")
	}
	if out.SampleRate <= 0 {
		out.SampleRate = 16000
	}
	frameBytes := out.Channels * 2
	pcm = pcm[:len(pcm)-len(pcm)%frameBytes]
	out.Data = pcm
	return out, nil
}

// Mono returns the data downmixed to a single PCM16LE channel.
func (w WAV) Mono() []byte {
	if w.Channels <= 1 {
		return w.Data
	}
	frameBytes := w.Channels * 2
	frameCount := len(w.Data) / frameBytes
	mono := make([]byte, frameCount*2)
	for i := 0; i < frameCount; i++ {
		base := i * frameBytes
		sum := 0
		for ch := 0; ch < w.Channels; ch++ {
			s := int16(binary.LittleEndian.Uint16(w.Data[base+ch*2 : base+ch*2+2]))
			sum += int(s)
		}
		binary.LittleEndian.PutUint16(mono[i*2:i*2+2], uint16(int16(sum/w.Channels)))
	}
	return mono
}
