package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"dubsync/internal/fileutil"
)

// Buffer holds interleaved signed 16-bit PCM.
//
// Operations return new buffers; MixAt is the only method that mutates its
// receiver and is reserved for the compositor's output track.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Silence returns a zeroed buffer of the given duration.
func Silence(sampleRate, channels int, durationMs int64) Buffer {
	b := Buffer{SampleRate: sampleRate, Channels: channels}
	frames := b.FrameAt(durationMs)
	b.Samples = make([]int16, frames*max(channels, 0))
	return b
}

// Validate reports whether the buffer describes well-formed interleaved PCM.
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", b.Channels)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("sample count %d is not a multiple of %d channels", len(b.Samples), b.Channels)
	}
	return nil
}

// SameFormat reports whether both buffers share sample rate and channel count.
func (b Buffer) SameFormat(other Buffer) bool {
	return b.SampleRate == other.SampleRate && b.Channels == other.Channels
}

// Frames returns the number of sample frames (one sample per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// DurationMs returns the buffer length in whole milliseconds.
func (b Buffer) DurationMs() int64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return int64(b.Frames()) * 1000 / int64(b.SampleRate)
}

// FrameAt converts a millisecond offset to a frame index at the buffer's
// sample rate, rounding down.
func (b Buffer) FrameAt(ms int64) int {
	if ms <= 0 || b.SampleRate <= 0 {
		return 0
	}
	return int(ms * int64(b.SampleRate) / 1000)
}

// Slice copies the frames in [startMs, endMs), clamped to the buffer.
func (b Buffer) Slice(startMs, endMs int64) Buffer {
	return b.SliceFrames(b.FrameAt(startMs), b.FrameAt(endMs))
}

// SliceFrames copies the frames in [start, end), clamped to the buffer.
func (b Buffer) SliceFrames(start, end int) Buffer {
	frames := b.Frames()
	start = min(max(start, 0), frames)
	end = min(max(end, start), frames)
	out := Buffer{SampleRate: b.SampleRate, Channels: b.Channels}
	out.Samples = make([]int16, (end-start)*b.Channels)
	copy(out.Samples, b.Samples[start*b.Channels:end*b.Channels])
	return out
}

// Fit returns a copy truncated or zero-padded to exactly frames frames.
func (b Buffer) Fit(frames int) Buffer {
	frames = max(frames, 0)
	out := Buffer{SampleRate: b.SampleRate, Channels: b.Channels}
	out.Samples = make([]int16, frames*b.Channels)
	copy(out.Samples, b.Samples)
	return out
}

// WithGain returns a copy scaled by gainDB decibels, clipped to int16.
func (b Buffer) WithGain(gainDB float64) Buffer {
	out := Buffer{SampleRate: b.SampleRate, Channels: b.Channels}
	out.Samples = make([]int16, len(b.Samples))
	factor := DBToAmplitude(gainDB)
	for i, s := range b.Samples {
		out.Samples[i] = clip(float64(s) * factor)
	}
	return out
}

// MixAt adds src into b starting at frame offset, saturating at the int16
// range. Frames that would land past the end of b are dropped. It returns the
// number of frames mixed.
func (b *Buffer) MixAt(src Buffer, offset int) (int, error) {
	if !b.SameFormat(src) {
		return 0, fmt.Errorf("mix format mismatch: %d Hz/%d ch into %d Hz/%d ch", src.SampleRate, src.Channels, b.SampleRate, b.Channels)
	}
	if offset < 0 {
		return 0, errors.New("mix offset must be >= 0")
	}
	available := b.Frames() - offset
	if available <= 0 {
		return 0, nil
	}
	frames := min(src.Frames(), available)
	dst := b.Samples[offset*b.Channels : (offset+frames)*b.Channels]
	for i := range dst {
		dst[i] = saturatingAdd(dst[i], src.Samples[i])
	}
	return frames, nil
}

// Digest returns the hex BLAKE3 digest of the little-endian PCM payload.
func (b Buffer) Digest() (string, error) {
	return fileutil.DigestReader(bytes.NewReader(SamplesToBytes(b.Samples)))
}

// DBToAmplitude converts a decibel gain to a linear amplitude factor.
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

func saturatingAdd(a, b int16) int16 {
	sum := int32(a) + int32(b)
	if sum > math.MaxInt16 {
		return math.MaxInt16
	}
	if sum < math.MinInt16 {
		return math.MinInt16
	}
	return int16(sum)
}

func clip(value float64) int16 {
	if value > math.MaxInt16 {
		return math.MaxInt16
	}
	if value < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(value))
}
