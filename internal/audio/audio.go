package audio

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate     = 48000
	Channels       = 2
	BitDepth       = 16
	FrameBytes     = Channels * BitDepth / 8 // bytes per interleaved sample frame
	BytesPerSecond = SampleRate * FrameBytes
)

// BytesToDuration converts a PCM byte count to playback time.
func BytesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / BytesPerSecond
}

// DurationToBytes converts playback time to a frame-aligned PCM byte offset.
func DurationToBytes(d time.Duration) int64 {
	frames := int64(d) * SampleRate / int64(time.Second)
	return frames * FrameBytes
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
