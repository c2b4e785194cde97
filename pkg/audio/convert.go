package audio

import (
	"encoding/binary"
	"math"
)

// Float32ToInt16LE converts a frame of float32 samples in [-1, 1] to 16-bit
// little-endian PCM bytes. Samples outside the valid range are clamped.
// Negative samples scale by 0x8000 and non-negative samples by 0x7FFF so that
// both extremes map onto the full int16 range without overflow.
func Float32ToInt16LE(frame []float32) []byte {
	out := make([]byte, len(frame)*BytesPerSample)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clampedInt16(s)))
	}
	return out
}

// Int16LEToFloat32 converts 16-bit little-endian PCM bytes back to float32
// samples. A trailing odd byte is ignored. The inverse of [Float32ToInt16LE]
// up to quantisation error; used by tests and the mock capture source.
func Int16LEToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if s < 0 {
			out[i] = float32(s) / 0x8000
		} else {
			out[i] = float32(s) / 0x7FFF
		}
	}
	return out
}

// Float32LEBytesToSamples reinterprets little-endian IEEE-754 float32 bytes
// as a sample frame. This is the format browser capture clients send over
// the practice WebSocket. A trailing partial sample is discarded.
func Float32LEBytesToSamples(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// clampedInt16 clamps s to [-1, 1] and scales it to the int16 range.
func clampedInt16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}
