// Package audio provides the PCM primitives shared by the capture pipeline,
// the assessment provider clients, and the WAV encoder.
//
// Audio flows through the system as frames of float32 samples in the range
// [-1, 1] at the fixed practice format (16 kHz mono). Conversion to the
// 16-bit little-endian wire format expected by assessment providers happens
// exactly once, at the provider boundary, via [Float32ToInt16LE].
package audio

// Practice audio is captured and streamed at a single fixed format. The
// browser capture worklet is configured for this rate; the server performs
// no software resampling.
const (
	// SampleRate is the capture and streaming sample rate in Hz.
	SampleRate = 16000

	// Channels is the channel count. Assessment providers require mono.
	Channels = 1

	// BytesPerSample is the width of one encoded PCM sample (16-bit).
	BytesPerSample = 2
)
