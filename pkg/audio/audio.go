// Package audio provides the PCM plumbing for the voice practice pipeline:
// sample-rate and channel conversion, WAV encoding for transcription uploads,
// Opus codec wrappers for the Discord voice gateway, and silence detection for
// utterance segmentation.
//
// All PCM in this package is 16-bit signed little-endian.
package audio

import (
	"encoding/binary"
	"math"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	DiscordSampleRate = 48000
	DiscordChannels   = 2
	frameSizeMs       = 20
	// FrameSize is the number of samples per channel per 20 ms frame.
	FrameSize = DiscordSampleRate * frameSizeMs / 1000 // 960

	// FrameBytes is the byte length of one 20 ms PCM frame (960 samples,
	// 2 channels, 2 bytes per sample).
	FrameBytes = FrameSize * DiscordChannels * 2

	bitsPerSample = 16
)

// ComputeRMS returns the root-mean-square energy of 16-bit PCM data.
// The maximum possible value for 16-bit audio is 32767; values near 300
// correspond to near-silence.
func ComputeRMS(pcm []byte) float64 {
	n := len(pcm) / 2 // number of 16-bit samples
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// DurationMs returns the duration of a PCM chunk in milliseconds, based on
// the sample rate and channel count. Returns 0 for invalid inputs.
func DurationMs(pcm []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return len(pcm) * 1000 / bytesPerSec
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
