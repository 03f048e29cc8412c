package segmenter

import (
	"fmt"
	"math"

	"dubsync/internal/config"
	"dubsync/internal/media/audio"
	"dubsync/internal/services"
	"dubsync/internal/timeline"
)

// fullScale is the reference amplitude for 0 dBFS with 16-bit samples.
const fullScale = 32768.0

// Params controls silence detection.
type Params struct {
	// MinSilenceLenMs is the shortest quiet stretch that separates phrases.
	MinSilenceLenMs int64
	// SilenceThresholdDB is the RMS level, in dBFS, at or below which a
	// window counts as silent.
	SilenceThresholdDB float64
	// PaddingMs is added to both sides of every detected interval.
	PaddingMs int64
}

// FromProfile converts a configured segmentation profile.
func FromProfile(p config.SegmentationProfile) Params {
	return Params{
		MinSilenceLenMs:    int64(p.MinSilenceLenMs),
		SilenceThresholdDB: p.SilenceThresholdDB,
		PaddingMs:          int64(p.PaddingMs),
	}
}

// Validate reports parameters that cannot describe a silence detector.
func (p Params) Validate() error {
	switch {
	case p.MinSilenceLenMs <= 0:
		return services.Wrap(services.ErrValidation, "segment", "params", fmt.Sprintf("min_silence_len_ms must be positive, got %d", p.MinSilenceLenMs), nil)
	case p.PaddingMs < 0:
		return services.Wrap(services.ErrValidation, "segment", "params", fmt.Sprintf("padding_ms must be >= 0, got %d", p.PaddingMs), nil)
	case p.SilenceThresholdDB > 0 || math.IsNaN(p.SilenceThresholdDB):
		return services.Wrap(services.ErrValidation, "segment", "params", fmt.Sprintf("silence_threshold_db must be <= 0 dBFS, got %v", p.SilenceThresholdDB), nil)
	}
	return nil
}

// Segment returns the padded speech intervals of buf in increasing order.
//
// A window of MinSilenceLenMs is slid across the buffer in 1ms steps.
// Consecutive silent windows merge into one silence run, and speech is
// whatever the runs leave uncovered. A buffer with no qualifying silence, or
// one shorter than MinSilenceLenMs, is a single interval covering all of it.
// A fully silent buffer has no speech.
func Segment(buf audio.Buffer, params Params) ([]timeline.SpeechInterval, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "segment", "buffer", "malformed pcm", err)
	}
	lengthMs := buf.DurationMs()
	if lengthMs == 0 {
		return nil, nil
	}
	raw := nonSilent(buf, params, lengthMs)
	return pad(raw, params.PaddingMs, lengthMs), nil
}

func nonSilent(buf audio.Buffer, params Params, lengthMs int64) []timeline.SpeechInterval {
	silences := silenceRuns(buf, params, lengthMs)
	if len(silences) == 0 {
		return []timeline.SpeechInterval{{StartMs: 0, EndMs: lengthMs}}
	}
	if silences[0].StartMs == 0 && silences[0].EndMs == lengthMs {
		return nil
	}

	var speech []timeline.SpeechInterval
	var prevEnd int64
	for _, run := range silences {
		if run.StartMs > prevEnd {
			speech = append(speech, timeline.SpeechInterval{StartMs: prevEnd, EndMs: run.StartMs})
		}
		prevEnd = run.EndMs
	}
	if prevEnd < lengthMs {
		speech = append(speech, timeline.SpeechInterval{StartMs: prevEnd, EndMs: lengthMs})
	}
	return speech
}

func silenceRuns(buf audio.Buffer, params Params, lengthMs int64) []timeline.SpeechInterval {
	window := params.MinSilenceLenMs
	if lengthMs < window {
		return nil
	}
	threshold := audio.DBToAmplitude(params.SilenceThresholdDB) * fullScale
	energy := newEnergyIndex(buf)

	var runs []timeline.SpeechInterval
	runStart, runLast := int64(-1), int64(-1)
	for start := int64(0); start <= lengthMs-window; start++ {
		if energy.rms(buf.FrameAt(start), buf.FrameAt(start+window)) > threshold {
			continue
		}
		if runStart >= 0 && start == runLast+1 {
			runLast = start
			continue
		}
		if runStart >= 0 {
			runs = append(runs, timeline.SpeechInterval{StartMs: runStart, EndMs: runLast + window})
		}
		runStart, runLast = start, start
	}
	if runStart >= 0 {
		runs = append(runs, timeline.SpeechInterval{StartMs: runStart, EndMs: runLast + window})
	}
	return mergeOverlapping(runs)
}

// mergeOverlapping joins silence runs whose spans overlap after extension by
// the window length.
func mergeOverlapping(runs []timeline.SpeechInterval) []timeline.SpeechInterval {
	if len(runs) < 2 {
		return runs
	}
	merged := runs[:1]
	for _, run := range runs[1:] {
		last := &merged[len(merged)-1]
		if run.StartMs <= last.EndMs {
			last.EndMs = max(last.EndMs, run.EndMs)
			continue
		}
		merged = append(merged, run)
	}
	return merged
}

// pad widens every interval by padding on both sides, clamped to the buffer.
// Neighbours that would overlap meet at the midpoint of the silence between
// them.
func pad(intervals []timeline.SpeechInterval, padding, lengthMs int64) []timeline.SpeechInterval {
	if len(intervals) == 0 {
		return nil
	}
	out := make([]timeline.SpeechInterval, len(intervals))
	for i, iv := range intervals {
		out[i] = timeline.SpeechInterval{
			StartMs: max(iv.StartMs-padding, 0),
			EndMs:   min(iv.EndMs+padding, lengthMs),
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].EndMs <= out[i].StartMs {
			continue
		}
		mid := intervals[i-1].EndMs + (intervals[i].StartMs-intervals[i-1].EndMs)/2
		out[i-1].EndMs = mid
		out[i].StartMs = mid
	}
	return out
}

// energyIndex answers windowed RMS queries in constant time using a prefix
// sum of squared samples per frame.
type energyIndex struct {
	channels int
	prefix   []uint64
}

func newEnergyIndex(buf audio.Buffer) energyIndex {
	frames := buf.Frames()
	prefix := make([]uint64, frames+1)
	for f := 0; f < frames; f++ {
		var sum uint64
		for _, s := range buf.Samples[f*buf.Channels : (f+1)*buf.Channels] {
			v := int64(s)
			sum += uint64(v * v)
		}
		prefix[f+1] = prefix[f] + sum
	}
	return energyIndex{channels: buf.Channels, prefix: prefix}
}

func (e energyIndex) rms(startFrame, endFrame int) float64 {
	endFrame = min(endFrame, len(e.prefix)-1)
	if endFrame <= startFrame {
		return 0
	}
	n := float64((endFrame - startFrame) * e.channels)
	return math.Sqrt(float64(e.prefix[endFrame]-e.prefix[startFrame]) / n)
}
