package timeline

import (
	"errors"
	"testing"

	"dubsync/internal/services"
)

func TestMapPairsByPosition(t *testing.T) {
	original := []TextSegment{
		{ID: "a", Original: SpeechInterval{0, 959}, Text: "hello"},
		{Original: SpeechInterval{1156, 2656}},
	}
	translated := []SpeechInterval{{0, 1200}, {1500, 2400}}

	table, err := Map(original, translated)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 records, got %d", len(table))
	}
	if table[0].ID != "a" || table[0].Text != "hello" {
		t.Fatalf("expected caller fields preserved, got %+v", table[0])
	}
	if table[1].ID != "seg-0002" {
		t.Fatalf("expected generated id seg-0002, got %q", table[1].ID)
	}
	if *table[1].Translated != (SpeechInterval{1500, 2400}) {
		t.Fatalf("unexpected translated interval %v", table[1].Translated)
	}
	if table[1].Original != (SpeechInterval{1156, 2656}) {
		t.Fatalf("original interval changed: %v", table[1].Original)
	}
	if original[0].Translated != nil || original[1].ID != "" {
		t.Fatal("Map must not modify its input")
	}
	if table.Mapped() != 2 || len(table.Missing()) != 0 {
		t.Fatalf("unexpected mapped/missing counts: %d/%v", table.Mapped(), table.Missing())
	}
}

func TestMapCountMismatch(t *testing.T) {
	original := SegmentsFromIntervals([]SpeechInterval{{0, 10}, {20, 30}, {40, 50}, {60, 70}, {80, 90}})
	translated := []SpeechInterval{{0, 10}, {20, 30}, {40, 50}, {60, 70}}

	table, err := Map(original, translated)
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
	if table != nil {
		t.Fatal("expected no partial table")
	}
	if !errors.Is(err, services.ErrSegmentCountMismatch) {
		t.Fatalf("expected ErrSegmentCountMismatch, got %v", err)
	}
	var mismatch *CountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *CountMismatchError in chain, got %T", err)
	}
	if mismatch.Original != 5 || mismatch.Translated != 4 {
		t.Fatalf("unexpected counts: %+v", mismatch)
	}
}

func TestMapRejectsInvalidIntervals(t *testing.T) {
	original := []TextSegment{{Original: SpeechInterval{100, 100}}}
	if _, err := Map(original, []SpeechInterval{{0, 10}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty original, got %v", err)
	}
	original = []TextSegment{{Original: SpeechInterval{0, 100}}}
	if _, err := Map(original, []SpeechInterval{{-5, 10}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative translated start, got %v", err)
	}
}

func TestMapEmpty(t *testing.T) {
	table, err := Map(nil, nil)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table, got %d", len(table))
	}
}

func TestMissingPositions(t *testing.T) {
	iv := SpeechInterval{0, 10}
	table := AlignmentTable{
		{Translated: &iv},
		{},
		{Translated: &iv},
		{},
	}
	missing := table.Missing()
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 3 {
		t.Fatalf("unexpected missing positions: %v", missing)
	}
	if table.Mapped() != 2 {
		t.Fatalf("expected 2 mapped, got %d", table.Mapped())
	}
}

func TestValidateIntervals(t *testing.T) {
	tests := []struct {
		name      string
		intervals []SpeechInterval
		limit     int64
		wantErr   bool
	}{
		{"ordered", []SpeechInterval{{0, 10}, {10, 20}, {30, 40}}, 40, false},
		{"no limit", []SpeechInterval{{0, 10}, {5000, 6000}}, 0, false},
		{"overlap", []SpeechInterval{{0, 10}, {9, 20}}, 0, true},
		{"unordered", []SpeechInterval{{30, 40}, {0, 10}}, 0, true},
		{"past end", []SpeechInterval{{0, 50}}, 40, true},
		{"empty interval", []SpeechInterval{{5, 5}}, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIntervals(tc.intervals, tc.limit)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateIntervals err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestSegmentsFromIntervals(t *testing.T) {
	segs := SegmentsFromIntervals([]SpeechInterval{{0, 959}, {1156, 2656}})
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].ID != "seg-0001" || segs[1].Original.StartMs != 1156 || segs[1].Translated != nil {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if SegmentLabel(segs[0], 0) != "segment 0 (seg-0001)" {
		t.Fatalf("unexpected label %q", SegmentLabel(segs[0], 0))
	}
}
