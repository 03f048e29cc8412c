package timeline

import (
	"fmt"

	"github.com/samber/lo"
)

// SpeechInterval is a half-open [StartMs, EndMs) span of detected speech.
type SpeechInterval struct {
	StartMs int64 `json:"start_ms" yaml:"start_ms"`
	EndMs   int64 `json:"end_ms" yaml:"end_ms"`
}

// DurationMs returns the interval length.
func (i SpeechInterval) DurationMs() int64 {
	return i.EndMs - i.StartMs
}

// Validate checks 0 <= StartMs < EndMs.
func (i SpeechInterval) Validate() error {
	if i.StartMs < 0 {
		return fmt.Errorf("interval %s starts before 0", i)
	}
	if i.EndMs <= i.StartMs {
		return fmt.Errorf("interval %s is empty or reversed", i)
	}
	return nil
}

func (i SpeechInterval) String() string {
	return fmt.Sprintf("[%d,%d)", i.StartMs, i.EndMs)
}

// TextSegment is one phrase of the source recording. Original is where the
// phrase sits in the source; Translated, when set, is where its translation
// sits in the translated track. A nil Translated marks a phrase with no
// translation, which is left unvoiced.
type TextSegment struct {
	ID         string          `json:"id,omitempty" yaml:"id,omitempty"`
	Original   SpeechInterval  `json:"original" yaml:"original"`
	Text       string          `json:"text,omitempty" yaml:"text,omitempty"`
	Translated *SpeechInterval `json:"translated,omitempty" yaml:"translated,omitempty"`
}

// AlignmentTable is the ordered segment list with translated positions
// attached, one record per original speech interval.
type AlignmentTable []TextSegment

// Mapped returns the number of records carrying a translated interval.
func (t AlignmentTable) Mapped() int {
	return lo.CountBy(t, func(seg TextSegment) bool { return seg.Translated != nil })
}

// Missing returns the positions of records without a translated interval.
func (t AlignmentTable) Missing() []int {
	return lo.FilterMap(t, func(seg TextSegment, i int) (int, bool) {
		return i, seg.Translated == nil
	})
}

// SegmentID returns a stable identifier for the segment at position index.
func SegmentID(index int) string {
	return fmt.Sprintf("seg-%04d", index+1)
}

// SegmentsFromIntervals builds text-less segments for intervals, used when
// no transcript is supplied.
func SegmentsFromIntervals(intervals []SpeechInterval) []TextSegment {
	return lo.Map(intervals, func(iv SpeechInterval, i int) TextSegment {
		return TextSegment{ID: SegmentID(i), Original: iv}
	})
}

// ValidateIntervals checks that intervals are well formed, strictly
// increasing, non-overlapping, and end at or before limitMs. A limitMs <= 0
// skips the upper bound check.
func ValidateIntervals(intervals []SpeechInterval, limitMs int64) error {
	for i, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return fmt.Errorf("interval %d: %w", i, err)
		}
		if limitMs > 0 && iv.EndMs > limitMs {
			return fmt.Errorf("interval %d: %s ends after %dms", i, iv, limitMs)
		}
		if i > 0 && iv.StartMs < intervals[i-1].EndMs {
			return fmt.Errorf("interval %d: %s overlaps or precedes %s", i, iv, intervals[i-1])
		}
	}
	return nil
}
