// Package codec decodes stem sources into PCM for native playback.
package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/satindergrewal/stemsync/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// ErrEmptySource is returned when a stem source holds no audio data.
var ErrEmptySource = errors.New("empty audio source")

// Decode turns an encoded stem into interleaved 16-bit stereo PCM at
// audio.SampleRate. The format is picked from the file extension of name;
// formats without a native decoder go through FFmpeg.
func Decode(ctx context.Context, name string, data []byte) (io.ReadSeeker, error) {
	if len(data) == 0 {
		return nil, ErrEmptySource
	}

	switch strings.ToLower(path.Ext(stripQuery(name))) {
	case ".mp3":
		s, err := mp3.DecodeWithSampleRate(audio.SampleRate, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode mp3 %s: %w", name, err)
		}
		return s, nil
	case ".wav":
		s, err := wav.DecodeWithSampleRate(audio.SampleRate, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode wav %s: %w", name, err)
		}
		return s, nil
	case ".ogg", ".oga":
		s, err := vorbis.DecodeWithSampleRate(audio.SampleRate, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode vorbis %s: %w", name, err)
		}
		return s, nil
	case ".opus":
		samples, err := DecodeOpus(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode opus %s: %w", name, err)
		}
		return bytes.NewReader(audio.SamplesToBytes(samples)), nil
	default:
		samples, err := DecodeFFmpeg(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return bytes.NewReader(audio.SamplesToBytes(samples)), nil
	}
}

// DecodeOpus decodes an Ogg Opus stream. Opus always decodes at 48kHz; the
// stream is expected to be stereo.
func DecodeOpus(r io.Reader) ([]int16, error) {
	s, err := opus.NewStream(r)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var out []int16
	buf := make([]int16, 5760*audio.Channels) // 120ms, the largest opus frame
	for {
		n, err := s.Read(buf)
		if n > 0 {
			out = append(out, buf[:n*audio.Channels]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptySource
	}
	return out, nil
}

// DecodeFFmpeg runs FFmpeg to decode any supported container to raw PCM int16
// samples. Returns interleaved stereo samples at 48kHz.
func DecodeFFmpeg(ctx context.Context, r io.Reader) ([]int16, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = r

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}
