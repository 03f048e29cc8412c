package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubsync/internal/config"
	"dubsync/internal/language"
	"dubsync/internal/logging"
	"dubsync/internal/manifest"
	"dubsync/internal/media/audio"
	"dubsync/internal/muxer"
	"dubsync/internal/overlay"
	"dubsync/internal/preflight"
	"dubsync/internal/segmenter"
	"dubsync/internal/services"
	"dubsync/internal/timeline"
)

const (
	stageDecode  = "decode"
	stageAlign   = "align"
	stageCompose = "compose"
	stageMux     = "mux"
)

// Run performs one dub. Inputs are validated before any decoding; a fatal
// error at any stage leaves no output file behind.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	plan, err := r.plan(req)
	if err != nil {
		return nil, err
	}

	lock, err := acquireOutputLock(plan.output)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithSource(ctx, plan.source)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("dub started",
		logging.String(logging.FieldEventType, "dub_start"),
		logging.String("translated", plan.translated),
		logging.String("output", plan.output),
		logging.String("kind", string(plan.kind)),
		logging.Bool("manifest", plan.manifest != nil),
	)

	var original, translated audio.Buffer
	var originalRef *audio.Buffer
	var totalMs int64
	if err := r.stage(ctx, stageDecode, func(ctx context.Context, logger *slog.Logger) error {
		container, err := r.inspectSource(ctx, logger, plan)
		if err != nil {
			return err
		}
		// With a manifest the original is only a bed for the mix, so a silent
		// dub never needs it unless the container hides its duration.
		skipOriginal := plan.manifest != nil && r.cfg.Compose.SilentOriginalAudio && container > 0
		if skipOriginal {
			logger.Info("original audio not decoded",
				logging.String(logging.FieldEventType, "original_skipped"),
				logging.String("reason", "manifest alignment with silent original"),
			)
		} else {
			if original, err = r.decoder.Decode(ctx, plan.source); err != nil {
				return err
			}
			originalRef = &original
		}
		if translated, err = r.decoder.Decode(ctx, plan.translated); err != nil {
			return err
		}
		totalMs = container
		if totalMs <= 0 {
			totalMs = original.DurationMs()
			logging.WarnWithContext(logger, "container duration unavailable", "duration_fallback",
				logging.Int64("decoded_ms", totalMs),
				logging.String(logging.FieldImpact, "output length follows the decoded audio"),
				logging.String(logging.FieldErrorHint, "check the source container with ffprobe"),
			)
		}
		logger.Info("audio decoded",
			logging.Int64("original_ms", original.DurationMs()),
			logging.Int64("translated_ms", translated.DurationMs()),
			logging.Int64("total_ms", totalMs),
			logging.Int("sample_rate", translated.SampleRate),
			logging.Int("channels", translated.Channels),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	var table timeline.AlignmentTable
	if err := r.stage(ctx, stageAlign, func(_ context.Context, logger *slog.Logger) error {
		var err error
		table, err = r.align(logger, plan.manifest, original, translated)
		return err
	}); err != nil {
		return nil, err
	}

	var track overlay.CompositedTrack
	if err := r.stage(ctx, stageCompose, func(ctx context.Context, _ *slog.Logger) error {
		var err error
		track, err = r.compositor.Compose(ctx, originalRef, table, translated, totalMs)
		return err
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, stageMux, func(ctx context.Context, logger *slog.Logger) error {
		return r.mux(ctx, logger, runID, plan, track.Buffer)
	}); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:      runID,
		OutputPath: plan.output,
		Kind:       plan.kind,
		Language:   plan.languageCode,
		DurationMs: totalMs,
		Table:      table,
		Placements: track.Placements,
		Stats:      track.Stats,
		Digest:     track.Digest,
		Elapsed:    time.Since(started),
	}
	if result.Stats.Skipped > 0 || result.Stats.ReconcileFailures > 0 {
		logging.WarnWithContext(logger, "output has unvoiced or unfitted phrases", "dub_degraded",
			logging.Alert("degraded_output"),
			logging.Int("skipped", result.Stats.Skipped),
			logging.Int("reconcile_failures", result.Stats.ReconcileFailures),
			logging.String(logging.FieldImpact, "some phrases are missing or overlap their neighbours"),
			logging.String(logging.FieldErrorHint, "rerun with --report to list affected segments"),
		)
	}
	logger.Info("dub complete",
		logging.String(logging.FieldEventType, "dub_complete"),
		logging.String("output", result.OutputPath),
		logging.Int("placed", result.Stats.Placed),
		logging.Int("skipped", result.Stats.Skipped),
		logging.String("digest", result.Digest),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

type runPlan struct {
	source       string
	translated   string
	output       string
	kind         muxer.Kind
	manifest     *manifest.Manifest
	language     string
	languageCode string
}

// plan validates everything that can be checked without decoding.
func (r *Runner) plan(req Request) (runPlan, error) {
	var p runPlan
	p.source = strings.TrimSpace(req.SourcePath)
	p.translated = strings.TrimSpace(req.TranslatedPath)

	kind, err := muxer.ValidateSource(p.source)
	if err != nil {
		return p, err
	}
	p.kind = kind
	if err := muxer.ValidateTranslatedAudio(p.translated); err != nil {
		return p, err
	}

	p.output = strings.TrimSpace(req.OutputPath)
	if p.output == "" {
		p.output = muxer.DefaultOutputPath(p.source, r.cfg.Mux.OutputSuffix)
	}
	if expanded, err := config.ExpandPath(p.output); err == nil {
		p.output = expanded
	}
	if samePath(p.output, p.source) || samePath(p.output, p.translated) {
		return p, services.Wrap(services.ErrValidation, "validate", "output", "output path must differ from the inputs", nil)
	}
	if !strings.EqualFold(filepath.Ext(p.output), filepath.Ext(p.source)) {
		return p, services.Wrap(services.ErrUnsupportedFormat, "validate", "output",
			fmt.Sprintf("output %q must keep the source container %s", filepath.Base(p.output), filepath.Ext(p.source)), nil)
	}
	if check := preflight.CheckOutputLocation(p.output); !check.Passed {
		return p, services.Wrap(services.ErrValidation, "validate", "output", check.Detail, nil)
	}

	if path := strings.TrimSpace(req.ManifestPath); path != "" {
		m, err := manifest.Load(path)
		if err != nil {
			return p, err
		}
		p.manifest = m
	}

	p.language = strings.TrimSpace(req.Language)
	if p.language == "" && p.manifest != nil {
		p.language = p.manifest.Language
	}
	if p.language != "" {
		code, err := language.Resolve(p.language)
		if err != nil {
			return p, services.Wrap(services.ErrValidation, "validate", "language", p.language, err)
		}
		p.languageCode = code
	}
	return p, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// stage runs fn with stage-scoped context and logs its start, completion, and
// failure.
func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context, *slog.Logger) error) error {
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, r.logger)
	start := time.Now()
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := fn(stageCtx, logger); err != nil {
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Duration("elapsed", time.Since(start)),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// inspectSource checks the source streams before anything is decoded and
// returns the container duration, or 0 when ffprobe cannot report one. An
// inspection failure is logged and tolerated; the decoder gets the final say.
func (r *Runner) inspectSource(ctx context.Context, logger *slog.Logger, plan runPlan) (int64, error) {
	result, err := r.prober.Inspect(ctx, plan.source)
	if err != nil {
		logging.WarnWithContext(logger, "source inspection failed", "inspect_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stream checks skipped"),
			logging.String(logging.FieldErrorHint, "check the source container with ffprobe"),
		)
		return 0, nil
	}

	if plan.kind == muxer.KindVideo && result.VideoStreamCount() == 0 {
		return 0, services.Wrap(services.ErrValidation, "inspect", "streams",
			fmt.Sprintf("%s has no video stream", filepath.Base(plan.source)), nil)
	}
	needsAudio := plan.manifest == nil || !r.cfg.Compose.SilentOriginalAudio
	stream, hasAudio := result.FirstAudioStream()
	if needsAudio && !hasAudio {
		return 0, services.Wrap(services.ErrValidation, "inspect", "streams",
			fmt.Sprintf("%s has no audio stream", filepath.Base(plan.source)), nil)
	}

	ms, _ := result.DurationMs()
	attrs := []logging.Attr{
		logging.Int("video_streams", result.VideoStreamCount()),
		logging.Int("audio_streams", result.AudioStreamCount()),
		logging.Int64("container_ms", ms),
		logging.Int64("size_bytes", result.SizeBytes()),
	}
	if hasAudio {
		attrs = append(attrs,
			logging.String("audio_codec", stream.CodecName),
			logging.Int("audio_sample_rate", stream.SampleRateHz()),
		)
		if lang := stream.Language(); lang != "" {
			attrs = append(attrs, logging.String("audio_language", lang))
		}
	}
	logger.Info("source inspected", logging.Args(attrs...)...)
	return ms, nil
}

// align builds the alignment table. A manifest with translated intervals is
// used as is; otherwise the translated audio is segmented and paired with the
// manifest segments, or with segments found in the original audio.
func (r *Runner) align(logger *slog.Logger, m *manifest.Manifest, original, translated audio.Buffer) (timeline.AlignmentTable, error) {
	if m.HasTranslated() {
		table := m.Table()
		if err := checkTranslatedBounds(table, translated.DurationMs()); err != nil {
			return nil, err
		}
		logger.Info("alignment loaded from manifest",
			logging.Int("segments", len(table)),
			logging.Int("mapped", table.Mapped()),
		)
		return table, nil
	}

	var segments []timeline.TextSegment
	if m != nil {
		segments = m.Segments
	} else {
		intervals, err := r.segment(original, config.ProfileOriginal)
		if err != nil {
			return nil, err
		}
		segments = timeline.SegmentsFromIntervals(intervals)
	}

	translatedIntervals, err := r.segment(translated, config.ProfileTranslated)
	if err != nil {
		return nil, err
	}
	table, err := timeline.Map(segments, translatedIntervals)
	if err != nil {
		return nil, err
	}
	logger.Info("alignment mapped by position",
		logging.Int("segments", len(table)),
		logging.Bool("from_manifest", m != nil),
	)
	return table, nil
}

// checkTranslatedBounds rejects manifest intervals that point past the end of
// the translated track. Intervals need not be ordered, so each is checked.
func checkTranslatedBounds(table timeline.AlignmentTable, translatedMs int64) error {
	for i, seg := range table {
		if seg.Translated == nil || seg.Translated.EndMs <= translatedMs {
			continue
		}
		return services.Wrap(services.ErrValidation, "align", "manifest",
			fmt.Sprintf("segment %d (%s): translated interval %s ends after the %dms translated track", i, seg.ID, seg.Translated, translatedMs), nil)
	}
	return nil
}

func (r *Runner) segment(buf audio.Buffer, profile string) ([]timeline.SpeechInterval, error) {
	p, err := r.cfg.Profile(profile)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "segment", profile, "profile lookup", err)
	}
	intervals, err := segmenter.Segment(buf, segmenter.FromProfile(p))
	if err != nil {
		return nil, err
	}
	return intervals, nil
}

// mux writes the composited track to a per-run scratch directory and hands it
// to the muxer. The scratch directory is removed whether or not muxing
// succeeds.
func (r *Runner) mux(ctx context.Context, logger *slog.Logger, runID string, plan runPlan, track audio.Buffer) error {
	scratch := filepath.Join(preflight.WorkDir(r.cfg), "dubsync-"+runID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return services.Wrap(services.ErrEncodeMux, "mux", "scratch", scratch, err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("failed to remove scratch directory", logging.String("path", scratch), logging.Error(err))
		}
	}()

	trackPath := filepath.Join(scratch, "track.wav")
	if err := audio.WriteWAV(trackPath, track); err != nil {
		return services.Wrap(services.ErrEncodeMux, "mux", "write track", trackPath, err)
	}
	written, err := audio.ReadWAV(trackPath)
	if err != nil {
		return services.Wrap(services.ErrEncodeMux, "mux", "verify track", trackPath, err)
	}
	if written.Frames() != track.Frames() || !written.SameFormat(track) {
		return services.Wrap(services.ErrEncodeMux, "mux", "verify track",
			fmt.Sprintf("wrote %d frames at %d Hz/%d ch, expected %d at %d Hz/%d ch",
				written.Frames(), written.SampleRate, written.Channels, track.Frames(), track.SampleRate, track.Channels), nil)
	}
	logger.Debug("intermediate track written", logging.String("path", trackPath), logging.Int("frames", written.Frames()))

	_, err = r.muxer.Mux(ctx, muxer.Request{
		SourcePath: plan.source,
		TrackPath:  trackPath,
		OutputPath: plan.output,
		Kind:       plan.kind,
		Language:   plan.language,
	})
	return err
}
