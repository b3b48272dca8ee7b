package synth

// DefaultChunkBytes is the binary frame size of the streaming protocol.
const DefaultChunkBytes = 32768

// Chunks splits audio into frames of at most size bytes. The slices alias audio.
func Chunks(audio []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkBytes
	}
	out := make([][]byte, 0, (len(audio)+size-1)/size)
	for off := 0; off < len(audio); off += size {
		end := off + size
		if end > len(audio) {
			end = len(audio)
		}
		out = append(out, audio[off:end])
	}
	return out
}
