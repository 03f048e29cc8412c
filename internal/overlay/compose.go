package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/media/audio"
	"dubsync/internal/services"
	"dubsync/internal/timeline"
)

// Placement records where one segment landed in the output.
type Placement struct {
	Index    int
	ID       string
	OffsetMs int64
	// Frames is the number of frames mixed into the output.
	Frames   int
	Skipped  bool
	Decision Decision
}

// Stats summarizes a composition.
type Stats struct {
	Segments          int `json:"segments"`
	Placed            int `json:"placed"`
	Skipped           int `json:"skipped"`
	Scaled            int `json:"scaled"`
	ReconcileFailures int `json:"reconcile_failures"`
	// Truncated counts placements cut short by the end of the track.
	Truncated int `json:"truncated"`
}

// CompositedTrack is the finished output audio.
type CompositedTrack struct {
	audio.Buffer
	Placements []Placement
	Stats      Stats
	// Digest is the hex BLAKE3 digest of the PCM payload.
	Digest string
}

// Compositor lays translated phrases over a base track at their original
// offsets.
type Compositor struct {
	logger           *slog.Logger
	reconciler       *Reconciler
	silentOriginal   bool
	backgroundGainDB float64
	workers          int
}

// NewCompositor builds a compositor from configuration.
func NewCompositor(cfg *config.Config, logger *slog.Logger) *Compositor {
	c := &Compositor{
		logger:  logging.NewComponentLogger(logger, "overlay"),
		workers: 1,
	}
	if cfg != nil {
		c.reconciler = NewReconciler(cfg.Reconcile)
		c.silentOriginal = cfg.Compose.SilentOriginalAudio
		c.backgroundGainDB = cfg.Compose.BackgroundGainDB
		c.workers = max(cfg.Compose.Workers, 1)
	}
	return c
}

type prepared struct {
	slice    audio.Buffer
	decision Decision
	skip     bool
}

// Compose builds a track of exactly totalDurationMs.
//
// The base is silence when original is nil or the compositor is configured
// to drop the original audio; otherwise it is the original attenuated by the
// background gain. Each record with a translated interval has its slice
// extracted from translated, reconciled, and mixed in at the record's
// original start. Records without one are skipped with a warning. Slices are
// prepared concurrently but mixed in table order, so the result is
// deterministic.
func (c *Compositor) Compose(ctx context.Context, original *audio.Buffer, table timeline.AlignmentTable, translated audio.Buffer, totalDurationMs int64) (CompositedTrack, error) {
	logger := logging.WithContext(ctx, c.logger)
	if totalDurationMs <= 0 {
		return CompositedTrack{}, services.Wrap(services.ErrValidation, "compose", "init", fmt.Sprintf("total duration must be positive, got %dms", totalDurationMs), nil)
	}
	if err := translated.Validate(); err != nil {
		return CompositedTrack{}, services.Wrap(services.ErrValidation, "compose", "translated audio", "malformed pcm", err)
	}
	if original != nil && !original.SameFormat(translated) {
		return CompositedTrack{}, services.Wrap(services.ErrValidation, "compose", "format",
			fmt.Sprintf("original %d Hz/%d ch differs from translated %d Hz/%d ch", original.SampleRate, original.Channels, translated.SampleRate, translated.Channels), nil)
	}

	out := c.base(original, translated, totalDurationMs)

	slices, err := c.prepare(ctx, table, translated)
	if err != nil {
		return CompositedTrack{}, err
	}

	track := CompositedTrack{Placements: make([]Placement, len(table))}
	track.Stats.Segments = len(table)
	for i, seg := range table {
		p := Placement{Index: i, ID: seg.ID, OffsetMs: seg.Original.StartMs, Decision: slices[i].decision}
		attrs := []logging.Attr{
			logging.Int(logging.FieldSegmentIndex, i),
			logging.String(logging.FieldSegmentID, seg.ID),
		}
		if slices[i].skip {
			p.Skipped = true
			track.Stats.Skipped++
			logging.WarnWithContext(logger, "segment has no translation; slot keeps base audio", "segment_skipped",
				append(attrs,
					logging.String(logging.FieldErrorKind, services.Kind(services.ErrMissingTranslation)),
					logging.String(logging.FieldImpact, "phrase is not voiced in the output"),
					logging.String(logging.FieldErrorHint, "check the translation manifest for this segment"),
				)...)
			track.Placements[i] = p
			continue
		}

		switch p.Decision.Action {
		case ActionScaled:
			track.Stats.Scaled++
			logger.Debug("segment scaled to fit slot", logging.Args(append(attrs,
				logging.Float64("ratio", p.Decision.Ratio),
				logging.Float64("scale", p.Decision.Scale),
			)...)...)
		case ActionFailed:
			track.Stats.ReconcileFailures++
			logging.WarnWithContext(logger, "segment could not be fitted; placing unscaled", "reconcile_failed",
				append(attrs,
					logging.Error(p.Decision.Err),
					logging.String(logging.FieldErrorKind, services.Kind(p.Decision.Err)),
					logging.Float64("ratio", p.Decision.Ratio),
					logging.String(logging.FieldImpact, "phrase may overlap the next one"),
				)...)
		}

		frames, err := out.MixAt(slices[i].slice, out.FrameAt(seg.Original.StartMs))
		if err != nil {
			return CompositedTrack{}, services.Wrap(services.ErrValidation, "compose", "mix", timeline.SegmentLabel(seg, i), err)
		}
		p.Frames = frames
		if frames < slices[i].slice.Frames() {
			track.Stats.Truncated++
		}
		track.Stats.Placed++
		track.Placements[i] = p
	}

	digest, err := out.Digest()
	if err != nil {
		return CompositedTrack{}, fmt.Errorf("digest composited track: %w", err)
	}
	track.Buffer = out
	track.Digest = digest

	logger.Info("composited track ready",
		logging.Int("segments", track.Stats.Segments),
		logging.Int("placed", track.Stats.Placed),
		logging.Int("skipped", track.Stats.Skipped),
		logging.Int("scaled", track.Stats.Scaled),
		logging.Int("reconcile_failures", track.Stats.ReconcileFailures),
		logging.Int64("duration_ms", out.DurationMs()),
	)
	return track, nil
}

func (c *Compositor) base(original *audio.Buffer, format audio.Buffer, totalDurationMs int64) audio.Buffer {
	silence := audio.Silence(format.SampleRate, format.Channels, totalDurationMs)
	if original == nil || c.silentOriginal {
		return silence
	}
	return original.WithGain(c.backgroundGainDB).Fit(silence.Frames())
}

// prepare extracts and reconciles every slice on a bounded worker pool.
func (c *Compositor) prepare(ctx context.Context, table timeline.AlignmentTable, translated audio.Buffer) ([]prepared, error) {
	results := make([]prepared, len(table))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := min(c.workers, max(len(table), 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.prepareOne(table[i], translated)
			}
		}()
	}

	var cancelled error
	for i := range table {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("compose cancelled: %w", cancelled)
	}
	return results, nil
}

func (c *Compositor) prepareOne(seg timeline.TextSegment, translated audio.Buffer) prepared {
	if seg.Translated == nil {
		return prepared{skip: true}
	}
	slice := translated.Slice(seg.Translated.StartMs, seg.Translated.EndMs)
	fitted, decision := c.reconciler.Reconcile(seg.Original, *seg.Translated, slice)
	return prepared{slice: fitted, decision: decision}
}
