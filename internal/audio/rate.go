package audio

import (
	"errors"
	"io"
	"sync"
	"time"
)

// RateReader wraps a 16-bit stereo PCM stream and plays it back at an
// adjustable rate by dropping or repeating whole frames. It is meant for the
// small corrections used to keep stems aligned, not for audible speed changes.
type RateReader struct {
	mu   sync.Mutex
	src  io.ReadSeeker
	rate float64
	frac float64 // fractional source frame carried between reads
	skew int64   // source frames consumed minus frames emitted since the last seek
	buf  []byte
}

// NewRateReader wraps src at rate 1.0.
func NewRateReader(src io.ReadSeeker) *RateReader {
	return &RateReader{src: src, rate: 1}
}

// SetRate changes the playback rate. Rates outside (0.5, 2) are rejected.
func (r *RateReader) SetRate(rate float64) error {
	if rate <= 0.5 || rate >= 2 {
		return errors.New("rate out of range")
	}
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
	return nil
}

// Rate returns the current playback rate.
func (r *RateReader) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// Skew returns how far the source is ahead of the emitted stream.
func (r *RateReader) Skew() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return BytesToDuration(r.skew * FrameBytes)
}

// Read fills p with whole frames.
func (r *RateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / FrameBytes
	if frames == 0 {
		return 0, nil
	}

	need := int(r.frac+float64(frames)*r.rate) + 1
	if cap(r.buf) < need*FrameBytes {
		r.buf = make([]byte, need*FrameBytes)
	}
	buf := r.buf[:need*FrameBytes]

	n, err := io.ReadFull(r.src, buf)
	got := n / FrameBytes
	if got == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}

	out := 0
	pos := r.frac
	for out < frames {
		i := int(pos)
		if i >= got {
			break
		}
		copy(p[out*FrameBytes:(out+1)*FrameBytes], buf[i*FrameBytes:(i+1)*FrameBytes])
		out++
		pos += r.rate
	}

	consumed := int(pos)
	if consumed >= got {
		consumed = got
		r.frac = 0
	} else {
		r.frac = pos - float64(consumed)
	}

	// Hand back the frames we looked at but did not consume.
	if unread := n - consumed*FrameBytes; unread > 0 {
		if _, serr := r.src.Seek(-int64(unread), io.SeekCurrent); serr != nil {
			return out * FrameBytes, serr
		}
	}

	r.skew += int64(consumed - out)
	return out * FrameBytes, nil
}

// Seek repositions the source and clears the accumulated skew.
func (r *RateReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, err := r.src.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.frac = 0
	r.skew = 0
	return pos, nil
}
