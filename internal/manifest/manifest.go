package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dubsync/internal/services"
	"dubsync/internal/timeline"
)

// Format is a manifest serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Span is an interval as written in a manifest. Either StartMs/EndMs or a
// two element Timestamp in seconds must be set.
type Span struct {
	StartMs   *int64            `json:"start_ms,omitempty" yaml:"start_ms,omitempty"`
	EndMs     *int64            `json:"end_ms,omitempty" yaml:"end_ms,omitempty"`
	Timestamp []decimal.Decimal `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Entry is one manifest segment.
type Entry struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Text       string `json:"text,omitempty" yaml:"text,omitempty"`
	Span       `yaml:",inline"`
	Translated *Span `json:"translated,omitempty" yaml:"translated,omitempty"`
}

// Document is the on-disk manifest shape.
type Document struct {
	Language string  `json:"language,omitempty" yaml:"language,omitempty"`
	Segments []Entry `json:"segments" yaml:"segments"`
}

// Manifest is a decoded, validated manifest.
type Manifest struct {
	Language string
	Segments []timeline.TextSegment
}

// HasTranslated reports whether any segment carries a translated interval.
func (m *Manifest) HasTranslated() bool {
	if m == nil {
		return false
	}
	return lo.SomeBy(m.Segments, func(seg timeline.TextSegment) bool { return seg.Translated != nil })
}

// Table returns the segments as an alignment table. Segments without a
// translated interval stay unmapped.
func (m *Manifest) Table() timeline.AlignmentTable {
	if m == nil {
		return nil
	}
	return append(timeline.AlignmentTable(nil), m.Segments...)
}

// FormatForPath picks the serialization from the file suffix.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", services.Wrap(services.ErrUnsupportedFormat, "manifest", "detect format",
			fmt.Sprintf("%q: supported formats are .json, .yaml, .yml", filepath.Base(path)), nil)
	}
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrInputNotFound, "manifest", "read", path, nil)
		}
		return nil, services.Wrap(services.ErrInputNotFound, "manifest", "read", path, err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "parse", filepath.Base(path), err)
	}
	return m, nil
}

// Parse decodes manifest bytes in the given format.
func Parse(data []byte, format Format) (*Manifest, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	return doc.Resolve()
}

// Resolve converts the document into validated timeline segments. Original
// intervals must be strictly increasing and non-overlapping; missing IDs are
// assigned by position.
func (d Document) Resolve() (*Manifest, error) {
	segments := make([]timeline.TextSegment, 0, len(d.Segments))
	for i, entry := range d.Segments {
		original, err := entry.Span.Interval()
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		seg := timeline.TextSegment{
			ID:       strings.TrimSpace(entry.ID),
			Original: original,
			Text:     entry.Text,
		}
		if seg.ID == "" {
			seg.ID = timeline.SegmentID(i)
		}
		if entry.Translated != nil {
			translated, err := entry.Translated.Interval()
			if err != nil {
				return nil, fmt.Errorf("segment %d translated: %w", i, err)
			}
			seg.Translated = &translated
		}
		segments = append(segments, seg)
	}

	originals := lo.Map(segments, func(seg timeline.TextSegment, _ int) timeline.SpeechInterval { return seg.Original })
	if err := timeline.ValidateIntervals(originals, 0); err != nil {
		return nil, err
	}
	if dup := lo.FindDuplicates(lo.Map(segments, func(seg timeline.TextSegment, _ int) string { return seg.ID })); len(dup) > 0 {
		return nil, fmt.Errorf("duplicate segment ids: %s", strings.Join(dup, ", "))
	}
	return &Manifest{Language: strings.TrimSpace(d.Language), Segments: segments}, nil
}

var thousand = decimal.NewFromInt(1000)

// Interval resolves the span to milliseconds. Seconds-based timestamps are
// rounded to the nearest millisecond.
func (s Span) Interval() (timeline.SpeechInterval, error) {
	var iv timeline.SpeechInterval
	switch {
	case s.StartMs != nil || s.EndMs != nil:
		if s.StartMs == nil || s.EndMs == nil {
			return iv, errors.New("start_ms and end_ms must both be set")
		}
		if len(s.Timestamp) > 0 {
			return iv, errors.New("use either start_ms/end_ms or timestamp, not both")
		}
		iv = timeline.SpeechInterval{StartMs: *s.StartMs, EndMs: *s.EndMs}
	case len(s.Timestamp) > 0:
		if len(s.Timestamp) != 2 {
			return iv, fmt.Errorf("timestamp needs 2 values, got %d", len(s.Timestamp))
		}
		iv = timeline.SpeechInterval{
			StartMs: s.Timestamp[0].Mul(thousand).Round(0).IntPart(),
			EndMs:   s.Timestamp[1].Mul(thousand).Round(0).IntPart(),
		}
	default:
		return iv, errors.New("missing interval")
	}
	if err := iv.Validate(); err != nil {
		return iv, err
	}
	return iv, nil
}

// SpanFromInterval renders an interval in millisecond form.
func SpanFromInterval(iv timeline.SpeechInterval) Span {
	start, end := iv.StartMs, iv.EndMs
	return Span{StartMs: &start, EndMs: &end}
}

// FromSegments builds a document from segments, e.g. a segmenter run or an
// alignment table.
func FromSegments(language string, segments []timeline.TextSegment) Document {
	return Document{
		Language: language,
		Segments: lo.Map(segments, func(seg timeline.TextSegment, _ int) Entry {
			entry := Entry{ID: seg.ID, Text: seg.Text, Span: SpanFromInterval(seg.Original)}
			if seg.Translated != nil {
				translated := SpanFromInterval(*seg.Translated)
				entry.Translated = &translated
			}
			return entry
		}),
	}
}

// Encode serializes the document.
func (d Document) Encode(format Format) ([]byte, error) {
	if d.Segments == nil {
		d.Segments = []Entry{}
	}
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
}

// Write serializes the document to path in the format its suffix names.
func Write(path string, doc Document) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := doc.Encode(format)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
