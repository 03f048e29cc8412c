package overlay

import (
	"fmt"

	"dubsync/internal/config"
	"dubsync/internal/media/audio"
	"dubsync/internal/services"
	"dubsync/internal/timeline"
)

// Action describes what the reconciler did with a translated slice.
type Action string

const (
	ActionKept     Action = "kept"
	ActionScaled   Action = "scaled"
	ActionDisabled Action = "disabled"
	ActionFailed   Action = "failed"
)

// Decision records the outcome of reconciling one segment.
type Decision struct {
	Action Action
	// Ratio is translated duration over original duration.
	Ratio float64
	// Scale is the playback length factor applied (1 when unchanged).
	Scale float64
	// Err wraps services.ErrReconciliation when Action is ActionFailed.
	Err error
}

// Reconciler fits translated phrases that overrun their original slot.
type Reconciler struct {
	enabled   bool
	tolerance float64
	maxRatio  float64
}

// NewReconciler builds a reconciler from configuration.
func NewReconciler(cfg config.Reconcile) *Reconciler {
	return &Reconciler{
		enabled:   cfg.Enabled,
		tolerance: cfg.Tolerance,
		maxRatio:  cfg.MaxRatio,
	}
}

// Reconcile returns the slice to place in the original slot. The ratio is
// measured on the extracted slice, which may be shorter than translated
// claims when the interval runs past the end of the translated track.
//
// A translation that overruns its slot by more than the tolerance is sped up
// by linear resampling to exactly the slot length. Pitch is not preserved.
// Shorter translations and those within tolerance are returned unchanged.
// When the slice cannot be fitted the unscaled slice is returned and the
// Decision carries the error; callers log it and continue.
func (r *Reconciler) Reconcile(original, translated timeline.SpeechInterval, slice audio.Buffer) (audio.Buffer, Decision) {
	if r == nil || !r.enabled {
		return slice, Decision{Action: ActionDisabled, Scale: 1}
	}
	originalMs := original.DurationMs()
	translatedMs := slice.DurationMs()
	if originalMs <= 0 {
		return slice, r.fail(0, fmt.Sprintf("original slot %s has no duration", original))
	}
	if translatedMs <= 0 {
		return slice, r.fail(0, fmt.Sprintf("translated slice %s is empty", translated))
	}

	ratio := float64(translatedMs) / float64(originalMs)
	if ratio-1 <= r.tolerance {
		return slice, Decision{Action: ActionKept, Ratio: ratio, Scale: 1}
	}
	if r.maxRatio > 0 && ratio > r.maxRatio {
		return slice, r.fail(ratio, fmt.Sprintf("ratio %.2f exceeds max %.2f", ratio, r.maxRatio))
	}

	target := slice.FrameAt(originalMs)
	if target <= 0 {
		return slice, r.fail(ratio, fmt.Sprintf("slot %s is shorter than one frame", original))
	}
	scaled := resampleLinear(slice, target)
	return scaled, Decision{
		Action: ActionScaled,
		Ratio:  ratio,
		Scale:  float64(originalMs) / float64(translatedMs),
	}
}

func (r *Reconciler) fail(ratio float64, message string) Decision {
	return Decision{
		Action: ActionFailed,
		Ratio:  ratio,
		Scale:  1,
		Err:    services.Wrap(services.ErrReconciliation, "compose", "reconcile", message, nil),
	}
}

// resampleLinear stretches or compresses buf to exactly frames frames by
// linear interpolation between neighbouring source frames.
func resampleLinear(buf audio.Buffer, frames int) audio.Buffer {
	out := audio.Buffer{SampleRate: buf.SampleRate, Channels: buf.Channels}
	out.Samples = make([]int16, frames*buf.Channels)
	n := buf.Frames()
	if n == 0 || frames == 0 {
		return out
	}
	step := float64(n) / float64(frames)
	for j := 0; j < frames; j++ {
		pos := float64(j) * step
		i0 := int(pos)
		if i0 >= n {
			i0 = n - 1
		}
		i1 := min(i0+1, n-1)
		frac := pos - float64(i0)
		for c := 0; c < buf.Channels; c++ {
			a := float64(buf.Samples[i0*buf.Channels+c])
			b := float64(buf.Samples[i1*buf.Channels+c])
			out.Samples[j*buf.Channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
