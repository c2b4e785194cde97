package audio

import "encoding/binary"

// wavHeaderSize is the fixed size of the RIFF/WAVE header written by
// [EncodeWAV]: the RIFF chunk descriptor, the fmt sub-chunk, and the data
// sub-chunk header.
const wavHeaderSize = 44

// EncodeWAV serialises captured float32 frames into a standard RIFF/WAVE
// container: PCM format tag 1, mono, 16-bit depth, little-endian samples.
// Frames are concatenated in order; each sample is clamped to [-1, 1] and
// scaled to int16 with the same rule as [Float32ToInt16LE].
//
// The output is always a valid WAV file of exactly 44 + 2*N bytes, where N is
// the total sample count. Zero frames yield a header-only 44-byte file rather
// than an error, so callers never need a failure path for empty captures.
func EncodeWAV(frames [][]float32, sampleRate int) []byte {
	samples := 0
	for _, f := range frames {
		samples += len(f)
	}
	dataLen := samples * BytesPerSample

	out := make([]byte, wavHeaderSize+dataLen)

	// RIFF chunk descriptor.
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")

	// fmt sub-chunk: PCM, mono, 16-bit.
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], Channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*BytesPerSample)) // byte rate
	binary.LittleEndian.PutUint16(out[32:34], BytesPerSample)                    // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                                // bits per sample

	// data sub-chunk.
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))

	off := wavHeaderSize
	for _, frame := range frames {
		for _, s := range frame {
			binary.LittleEndian.PutUint16(out[off:], uint16(clampedInt16(s)))
			off += 2
		}
	}
	return out
}
