package timeline

import (
	"fmt"

	"dubsync/internal/services"
)

// CountMismatchError reports differing original and translated segment counts.
type CountMismatchError struct {
	Original   int
	Translated int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("%d original segments vs %d translated segments", e.Original, e.Translated)
}

// Map pairs original segments with translated intervals by position: segment
// i receives translated interval i. Differing counts fail with
// services.ErrSegmentCountMismatch wrapping a *CountMismatchError; nothing is
// truncated. The input slice is not modified.
func Map(original []TextSegment, translated []SpeechInterval) (AlignmentTable, error) {
	if len(original) != len(translated) {
		return nil, services.Wrap(
			services.ErrSegmentCountMismatch,
			"map",
			"pair segments",
			"re-segment the translated audio or supply a matching manifest",
			&CountMismatchError{Original: len(original), Translated: len(translated)},
		)
	}

	table := make(AlignmentTable, len(original))
	for i, seg := range original {
		if err := seg.Original.Validate(); err != nil {
			return nil, services.Wrap(services.ErrValidation, "map", "original interval", SegmentLabel(seg, i), err)
		}
		if err := translated[i].Validate(); err != nil {
			return nil, services.Wrap(services.ErrValidation, "map", "translated interval", SegmentLabel(seg, i), err)
		}
		record := seg
		if record.ID == "" {
			record.ID = SegmentID(i)
		}
		iv := translated[i]
		record.Translated = &iv
		table[i] = record
	}
	return table, nil
}

// SegmentLabel renders a segment reference for logs and error messages.
func SegmentLabel(seg TextSegment, index int) string {
	if seg.ID != "" {
		return fmt.Sprintf("segment %d (%s)", index, seg.ID)
	}
	return fmt.Sprintf("segment %d", index)
}
