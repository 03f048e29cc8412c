package overlay

import (
	"errors"
	"math"
	"testing"

	"dubsync/internal/config"
	"dubsync/internal/services"
	"dubsync/internal/testsupport"
	"dubsync/internal/timeline"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(config.Default().Reconcile)
}

func TestReconcileScalesOverrunningPhrase(t *testing.T) {
	slot := timeline.SpeechInterval{StartMs: 0, EndMs: 1000}
	translated := timeline.SpeechInterval{StartMs: 0, EndMs: 1800}
	slice := testsupport.Constant(8000, 2, 1800, 500)

	out, decision := newTestReconciler().Reconcile(slot, translated, slice)
	if decision.Action != ActionScaled {
		t.Fatalf("expected scaled, got %s", decision.Action)
	}
	if math.Abs(decision.Scale-0.5556) > 0.001 {
		t.Fatalf("expected scale ~0.556, got %v", decision.Scale)
	}
	if math.Abs(decision.Ratio-1.8) > 1e-9 {
		t.Fatalf("expected ratio 1.8, got %v", decision.Ratio)
	}
	if out.Frames() != 8000 {
		t.Fatalf("expected exactly the 1000ms slot (8000 frames), got %d", out.Frames())
	}
	if limit := slice.FrameAt(1200); out.Frames() > limit {
		t.Fatalf("scaled slice %d frames exceeds slot plus tolerance %d", out.Frames(), limit)
	}
	for i, s := range out.Samples {
		if s != 500 {
			t.Fatalf("sample %d = %d, expected constant signal to survive resampling", i, s)
		}
	}
	if decision.Err != nil {
		t.Fatalf("unexpected error: %v", decision.Err)
	}
}

func TestReconcileLeavesShortOrTolerablePhrases(t *testing.T) {
	slot := timeline.SpeechInterval{StartMs: 1000, EndMs: 2000}
	tests := []struct {
		name       string
		translated timeline.SpeechInterval
	}{
		{"shorter", timeline.SpeechInterval{StartMs: 0, EndMs: 600}},
		{"equal", timeline.SpeechInterval{StartMs: 0, EndMs: 1000}},
		{"within tolerance", timeline.SpeechInterval{StartMs: 0, EndMs: 1200}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			slice := testsupport.Constant(1000, 1, tc.translated.DurationMs(), 9)
			out, decision := newTestReconciler().Reconcile(slot, tc.translated, slice)
			if decision.Action != ActionKept || decision.Scale != 1 {
				t.Fatalf("expected kept with scale 1, got %+v", decision)
			}
			if out.Frames() != slice.Frames() {
				t.Fatalf("expected unchanged length %d, got %d", slice.Frames(), out.Frames())
			}
		})
	}
}

func TestReconcileMeasuresExtractedSlice(t *testing.T) {
	slot := timeline.SpeechInterval{StartMs: 0, EndMs: 1000}
	claimed := timeline.SpeechInterval{StartMs: 1000, EndMs: 4000}
	slice := testsupport.Constant(1000, 1, 700, 4)

	out, decision := newTestReconciler().Reconcile(slot, claimed, slice)
	if decision.Action != ActionKept || decision.Scale != 1 {
		t.Fatalf("expected a 700ms slice in a 1000ms slot to be kept, got %+v", decision)
	}
	if math.Abs(decision.Ratio-0.7) > 1e-9 {
		t.Fatalf("expected ratio from slice length 0.7, got %v", decision.Ratio)
	}
	if out.Frames() != slice.Frames() {
		t.Fatalf("expected unchanged length %d, got %d", slice.Frames(), out.Frames())
	}
}

func TestReconcileFailuresKeepSlice(t *testing.T) {
	tests := []struct {
		name       string
		original   timeline.SpeechInterval
		translated timeline.SpeechInterval
		sliceMs    int64
	}{
		{"zero length slot", timeline.SpeechInterval{StartMs: 500, EndMs: 500}, timeline.SpeechInterval{StartMs: 0, EndMs: 300}, 300},
		{"ratio above max", timeline.SpeechInterval{StartMs: 0, EndMs: 100}, timeline.SpeechInterval{StartMs: 0, EndMs: 400}, 400},
		{"empty slice", timeline.SpeechInterval{StartMs: 0, EndMs: 100}, timeline.SpeechInterval{StartMs: 0, EndMs: 150}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			slice := testsupport.Constant(1000, 1, tc.sliceMs, 3)
			out, decision := newTestReconciler().Reconcile(tc.original, tc.translated, slice)
			if decision.Action != ActionFailed {
				t.Fatalf("expected failed, got %s", decision.Action)
			}
			if !errors.Is(decision.Err, services.ErrReconciliation) {
				t.Fatalf("expected ErrReconciliation, got %v", decision.Err)
			}
			if services.IsFatal(decision.Err) {
				t.Fatal("reconciliation failures must not be fatal")
			}
			if out.Frames() != slice.Frames() {
				t.Fatalf("expected unscaled slice, got %d frames", out.Frames())
			}
		})
	}
}

func TestReconcileDisabled(t *testing.T) {
	cfg := config.Default().Reconcile
	cfg.Enabled = false
	slice := testsupport.Constant(1000, 1, 1800, 1)
	out, decision := NewReconciler(cfg).Reconcile(timeline.SpeechInterval{EndMs: 1000}, timeline.SpeechInterval{EndMs: 1800}, slice)
	if decision.Action != ActionDisabled || out.Frames() != 1800 {
		t.Fatalf("expected pass-through when disabled, got %+v with %d frames", decision, out.Frames())
	}
}

func TestResampleLinearInterpolates(t *testing.T) {
	src := testsupport.Constant(1000, 1, 4, 0)
	copy(src.Samples, []int16{0, 100, 200, 300})

	down := resampleLinear(src, 2)
	if down.Samples[0] != 0 || down.Samples[1] != 200 {
		t.Fatalf("unexpected downsampled values %v", down.Samples)
	}
	up := resampleLinear(src, 8)
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	for i := range want {
		if up.Samples[i] != want[i] {
			t.Fatalf("upsampled[%d] = %d, want %d (all %v)", i, up.Samples[i], want[i], up.Samples)
		}
	}
}
