package testsupport

import "dubsync/internal/media/audio"

// Span describes a stretch of synthetic audio. A zero Amplitude is silence.
type Span struct {
	DurationMs int64
	Amplitude  int16
}

// Speech returns a span of full-band square wave at amplitude.
func Speech(durationMs int64, amplitude int16) Span {
	return Span{DurationMs: durationMs, Amplitude: amplitude}
}

// Pause returns a silent span.
func Pause(durationMs int64) Span {
	return Span{DurationMs: durationMs}
}

// Pattern concatenates spans into one buffer. Non-silent spans are square
// waves alternating +amplitude/-amplitude per frame, so their RMS equals the
// amplitude exactly.
func Pattern(sampleRate, channels int, spans ...Span) audio.Buffer {
	buf := audio.Buffer{SampleRate: sampleRate, Channels: channels}
	for _, span := range spans {
		frames := int(span.DurationMs * int64(sampleRate) / 1000)
		for f := 0; f < frames; f++ {
			value := span.Amplitude
			if f%2 == 1 {
				value = -value
			}
			for c := 0; c < channels; c++ {
				buf.Samples = append(buf.Samples, value)
			}
		}
	}
	return buf
}

// Constant returns a DC buffer where every sample equals value. Placement
// tests use distinct constants to identify which phrase landed where.
func Constant(sampleRate, channels int, durationMs int64, value int16) audio.Buffer {
	buf := audio.Silence(sampleRate, channels, durationMs)
	for i := range buf.Samples {
		buf.Samples[i] = value
	}
	return buf
}
