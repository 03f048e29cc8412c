package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/media/audio"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/muxer"
	"dubsync/internal/pipeline"
	"dubsync/internal/services"
	"dubsync/internal/testsupport"
	"dubsync/internal/timeline"
)

type fakeDecoder struct {
	buffers map[string]audio.Buffer
	calls   int
}

func (d *fakeDecoder) Decode(_ context.Context, path string) (audio.Buffer, error) {
	d.calls++
	buf, ok := d.buffers[path]
	if !ok {
		return audio.Buffer{}, services.Wrap(services.ErrDecode, "decode", "ffmpeg", path, nil)
	}
	return buf, nil
}

type fakeProber struct {
	duration string
	streams  []ffprobe.Stream
	err      error
}

func (p fakeProber) Inspect(context.Context, string) (ffprobe.Result, error) {
	if p.err != nil {
		return ffprobe.Result{}, p.err
	}
	return ffprobe.Result{Streams: p.streams, Format: ffprobe.Format{Duration: p.duration}}, nil
}

var (
	videoStream = ffprobe.Stream{Index: 0, CodecType: "video", CodecName: "h264", AvgFrameRate: "25/1"}
	audioStream = ffprobe.Stream{Index: 1, CodecType: "audio", CodecName: "aac", SampleRate: "48000", Channels: 2, Tags: map[string]string{"language": "eng"}}
)

type fakeMuxer struct {
	requests    []muxer.Request
	trackFrames int
	track       audio.Buffer
	err         error
}

func (m *fakeMuxer) Mux(_ context.Context, req muxer.Request) (string, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	track, err := audio.ReadWAV(req.TrackPath)
	if err != nil {
		return "", err
	}
	m.trackFrames = track.Frames()
	m.track = track
	if err := os.WriteFile(req.OutputPath, []byte("muxed"), 0o644); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

type fixture struct {
	cfg        *config.Config
	dir        string
	source     string
	translated string
	decoder    *fakeDecoder
	prober     fakeProber
	muxer      *fakeMuxer
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Segmentation.Translated = config.SegmentationProfile{MinSilenceLenMs: 200, SilenceThresholdDB: -30, PaddingMs: 0}

	dir := t.TempDir()
	f := &fixture{
		cfg:        cfg,
		dir:        dir,
		source:     filepath.Join(dir, "talk.mp4"),
		translated: filepath.Join(dir, "spanish.mp3"),
		prober:     fakeProber{duration: "2.000000", streams: []ffprobe.Stream{videoStream, audioStream}},
		muxer:      &fakeMuxer{},
	}
	testsupport.WriteFile(t, f.source, 16)
	testsupport.WriteFile(t, f.translated, 16)

	rate, ch := cfg.Compose.SampleRate, cfg.Compose.Channels
	f.decoder = &fakeDecoder{buffers: map[string]audio.Buffer{
		f.source: testsupport.Pattern(rate, ch,
			testsupport.Speech(500, 10000), testsupport.Pause(500),
			testsupport.Speech(500, 10000), testsupport.Pause(500)),
		f.translated: testsupport.Pattern(rate, ch,
			testsupport.Speech(300, 8000), testsupport.Pause(400),
			testsupport.Speech(700, 8000), testsupport.Pause(300)),
	}}
	return f
}

func (f *fixture) runner() *pipeline.Runner {
	return pipeline.New(f.cfg, logging.NewNop(),
		pipeline.WithDecoder(f.decoder),
		pipeline.WithProber(f.prober),
		pipeline.WithMuxer(f.muxer),
	)
}

func assertNoScratch(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.WorkDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "dubsync-") {
			t.Fatalf("scratch directory %s left behind", e.Name())
		}
	}
}

func TestRunSegmentsAndMuxes(t *testing.T) {
	f := newFixture(t)
	result, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: f.translated,
		Language:       "es",
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	wantOutput := filepath.Join(f.dir, "talk_translated.mp4")
	if result.OutputPath != wantOutput {
		t.Fatalf("unexpected output %q", result.OutputPath)
	}
	if _, err := os.Stat(wantOutput); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if _, err := os.Stat(wantOutput + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err=%v", err)
	}
	assertNoScratch(t, f.cfg)

	wantTable := []struct{ original, translated timeline.SpeechInterval }{
		{timeline.SpeechInterval{StartMs: 0, EndMs: 550}, timeline.SpeechInterval{StartMs: 0, EndMs: 300}},
		{timeline.SpeechInterval{StartMs: 950, EndMs: 1550}, timeline.SpeechInterval{StartMs: 700, EndMs: 1400}},
	}
	if len(result.Table) != len(wantTable) {
		t.Fatalf("expected %d records, got %d", len(wantTable), len(result.Table))
	}
	for i, want := range wantTable {
		rec := result.Table[i]
		if rec.Original != want.original || rec.Translated == nil || *rec.Translated != want.translated {
			t.Fatalf("record %d: got %v -> %v", i, rec.Original, rec.Translated)
		}
	}

	if result.Stats.Placed != 2 || result.Stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", result.Stats)
	}
	if result.DurationMs != 2000 || f.muxer.trackFrames != 16000 {
		t.Fatalf("expected 2000ms track, got %dms and %d frames", result.DurationMs, f.muxer.trackFrames)
	}
	if result.RunID == "" || result.Digest == "" {
		t.Fatalf("expected run id and digest, got %+v", result)
	}
	if result.Language != "spa" || result.Kind != muxer.KindVideo {
		t.Fatalf("unexpected language/kind %q %q", result.Language, result.Kind)
	}

	req := f.muxer.requests[0]
	if req.SourcePath != f.source || req.Kind != muxer.KindVideo || req.Language != "es" {
		t.Fatalf("unexpected mux request %+v", req)
	}
}

func TestRunRejectsUnsupportedSourceBeforeDecode(t *testing.T) {
	f := newFixture(t)
	mov := filepath.Join(f.dir, "video.mov")
	testsupport.WriteFile(t, mov, 16)

	_, err := f.runner().Run(context.Background(), pipeline.Request{SourcePath: mov, TranslatedPath: f.translated})
	if !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if f.decoder.calls != 0 {
		t.Fatalf("expected no decode calls, got %d", f.decoder.calls)
	}
}

func TestRunMissingTranslatedAudio(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: filepath.Join(f.dir, "absent.mp3"),
	})
	if !errors.Is(err, services.ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
}

func TestRunCountMismatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	rate, ch := f.cfg.Compose.SampleRate, f.cfg.Compose.Channels
	f.decoder.buffers[f.translated] = testsupport.Pattern(rate, ch,
		testsupport.Speech(300, 8000), testsupport.Pause(300),
		testsupport.Speech(300, 8000), testsupport.Pause(300),
		testsupport.Speech(300, 8000), testsupport.Pause(300))

	_, err := f.runner().Run(context.Background(), pipeline.Request{SourcePath: f.source, TranslatedPath: f.translated})
	if !errors.Is(err, services.ErrSegmentCountMismatch) {
		t.Fatalf("expected ErrSegmentCountMismatch, got %v", err)
	}
	var mismatch *timeline.CountMismatchError
	if !errors.As(err, &mismatch) || mismatch.Original != 2 || mismatch.Translated != 3 {
		t.Fatalf("expected 2 vs 3 mismatch, got %v", err)
	}
	if len(f.muxer.requests) != 0 {
		t.Fatal("muxer must not run after a fatal alignment error")
	}
	if _, err := os.Stat(filepath.Join(f.dir, "talk_translated.mp4")); !os.IsNotExist(err) {
		t.Fatalf("expected no output, stat err=%v", err)
	}
}

func TestRunUsesManifestTranslatedIntervals(t *testing.T) {
	f := newFixture(t)
	manifestPath := filepath.Join(f.dir, "talk.yaml")
	body := `language: de
segments:
  - text: hello
    start_ms: 0
    end_ms: 500
    translated: {start_ms: 0, end_ms: 300}
  - text: dropped
    start_ms: 700
    end_ms: 900
  - text: world
    timestamp: [1.0, 1.5]
    translated: {start_ms: 700, end_ms: 1400}
`
	if err := os.WriteFile(manifestPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	result, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: f.translated,
		ManifestPath:   manifestPath,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Table) != 3 || result.Stats.Placed != 2 || result.Stats.Skipped != 1 {
		t.Fatalf("unexpected table/stats: %d %+v", len(result.Table), result.Stats)
	}
	if !result.Placements[1].Skipped || result.Placements[2].OffsetMs != 1000 {
		t.Fatalf("unexpected placements %+v", result.Placements)
	}
	if result.Language != "deu" || f.muxer.requests[0].Language != "de" {
		t.Fatalf("expected manifest language, got %q / %q", result.Language, f.muxer.requests[0].Language)
	}
}

func TestRunPairsManifestSegmentsWithTranslatedAudio(t *testing.T) {
	f := newFixture(t)
	manifestPath := filepath.Join(f.dir, "talk.json")
	body := `{"segments":[{"text":"one","start_ms":100,"end_ms":400},{"text":"two","start_ms":1000,"end_ms":1500}]}`
	if err := os.WriteFile(manifestPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	result, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: f.translated,
		ManifestPath:   manifestPath,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Table[0].Text != "one" || result.Table[1].Translated == nil || result.Table[1].Translated.StartMs != 700 {
		t.Fatalf("unexpected table %+v", result.Table)
	}
}

func TestRunOutputLocked(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.dir, "talk_translated.mp4")
	held := flock.New(output + ".lock")
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	_, err = f.runner().Run(context.Background(), pipeline.Request{SourcePath: f.source, TranslatedPath: f.translated})
	if !errors.Is(err, services.ErrOutputLocked) {
		t.Fatalf("expected ErrOutputLocked, got %v", err)
	}
	if f.decoder.calls != 0 {
		t.Fatal("expected no decoding while output is locked")
	}
}

func TestRunMuxFailureCleansScratch(t *testing.T) {
	f := newFixture(t)
	f.muxer.err = services.Wrap(services.ErrEncodeMux, "mux", "ffmpeg", "talk_translated.mp4", errors.New("exit status 1"))

	_, err := f.runner().Run(context.Background(), pipeline.Request{SourcePath: f.source, TranslatedPath: f.translated})
	if !errors.Is(err, services.ErrEncodeMux) {
		t.Fatalf("expected ErrEncodeMux, got %v", err)
	}
	assertNoScratch(t, f.cfg)
}

func TestRunFallsBackToDecodedDuration(t *testing.T) {
	f := newFixture(t)
	f.prober = fakeProber{err: errors.New("ffprobe exploded")}

	result, err := f.runner().Run(context.Background(), pipeline.Request{SourcePath: f.source, TranslatedPath: f.translated})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.DurationMs != 2000 {
		t.Fatalf("expected decoded duration, got %d", result.DurationMs)
	}
}

func TestRunValidatesRequest(t *testing.T) {
	f := newFixture(t)
	cases := map[string]pipeline.Request{
		"bad language":     {SourcePath: f.source, TranslatedPath: f.translated, Language: "xyz"},
		"output is source": {SourcePath: f.source, TranslatedPath: f.translated, OutputPath: f.source},
		"missing out dir":  {SourcePath: f.source, TranslatedPath: f.translated, OutputPath: filepath.Join(f.dir, "nope", "out.mp4")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.runner().Run(context.Background(), req); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	_, err := f.runner().Run(context.Background(), pipeline.Request{SourcePath: f.source, TranslatedPath: f.translated, OutputPath: filepath.Join(f.dir, "out.avi")})
	if !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for container change, got %v", err)
	}
}

func TestRunSilentOriginalDropsSourceAudio(t *testing.T) {
	sampleAt := func(buf audio.Buffer, ms int64) int16 {
		return buf.Samples[buf.FrameAt(ms)*buf.Channels]
	}

	mixed := newFixture(t, testsupport.WithFormat(16000, 2))
	if _, err := mixed.runner().Run(context.Background(), pipeline.Request{SourcePath: mixed.source, TranslatedPath: mixed.translated}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if mixed.muxer.track.Channels != 2 || mixed.muxer.track.SampleRate != 16000 {
		t.Fatalf("unexpected track format %d Hz/%d ch", mixed.muxer.track.SampleRate, mixed.muxer.track.Channels)
	}
	// 400ms sits after the first translated phrase ends but inside the
	// original speech, so only the attenuated source is audible there.
	if sampleAt(mixed.muxer.track, 400) == 0 {
		t.Fatal("expected attenuated source audio under the dub")
	}

	silent := newFixture(t, testsupport.WithFormat(16000, 2), testsupport.WithSilentOriginal(true))
	if _, err := silent.runner().Run(context.Background(), pipeline.Request{SourcePath: silent.source, TranslatedPath: silent.translated}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := sampleAt(silent.muxer.track, 400); got != 0 {
		t.Fatalf("expected silence with the source dropped, got %d", got)
	}
}

func TestRunRejectsSourceWithoutRequiredStreams(t *testing.T) {
	cases := map[string][]ffprobe.Stream{
		"no video": {audioStream},
		"no audio": {videoStream},
		"cover art only": {
			{CodecType: "video", CodecName: "mjpeg", AvgFrameRate: "0/0"},
			audioStream,
		},
	}
	for name, streams := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.prober.streams = streams
			_, err := f.runner().Run(context.Background(), pipeline.Request{SourcePath: f.source, TranslatedPath: f.translated})
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if f.decoder.calls != 0 || len(f.muxer.requests) != 0 {
				t.Fatalf("expected no decode or mux, got %d decodes and %d mux calls", f.decoder.calls, len(f.muxer.requests))
			}
		})
	}
}

func TestRunRejectsManifestIntervalPastTranslatedTrack(t *testing.T) {
	f := newFixture(t)
	manifestPath := filepath.Join(f.dir, "talk.yaml")
	body := `segments:
  - text: hello
    start_ms: 0
    end_ms: 500
    translated: {start_ms: 0, end_ms: 300}
  - text: world
    start_ms: 1000
    end_ms: 1500
    translated: {start_ms: 700, end_ms: 5000}
`
	if err := os.WriteFile(manifestPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: f.translated,
		ManifestPath:   manifestPath,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "1700ms") {
		t.Fatalf("expected translated track length in error, got %v", err)
	}
	if len(f.muxer.requests) != 0 {
		t.Fatal("muxer must not run after a manifest bounds error")
	}
}

func TestRunSilentManifestDubSkipsOriginalDecode(t *testing.T) {
	f := newFixture(t, testsupport.WithSilentOriginal(true))
	delete(f.decoder.buffers, f.source)
	f.prober.streams = []ffprobe.Stream{videoStream}

	manifestPath := filepath.Join(f.dir, "talk.yaml")
	body := `segments:
  - text: hello
    start_ms: 0
    end_ms: 500
    translated: {start_ms: 0, end_ms: 300}
  - text: world
    start_ms: 1000
    end_ms: 1500
    translated: {start_ms: 700, end_ms: 1400}
`
	if err := os.WriteFile(manifestPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	result, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: f.translated,
		ManifestPath:   manifestPath,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if f.decoder.calls != 1 {
		t.Fatalf("expected only the translated audio decoded, got %d calls", f.decoder.calls)
	}
	if result.DurationMs != 2000 || f.muxer.trackFrames != 16000 || result.Stats.Placed != 2 {
		t.Fatalf("unexpected result %dms, %d frames, %+v", result.DurationMs, f.muxer.trackFrames, result.Stats)
	}
}

func TestRunSilentManifestDubDecodesOriginalWithoutContainerDuration(t *testing.T) {
	f := newFixture(t, testsupport.WithSilentOriginal(true))
	f.prober.duration = "N/A"

	manifestPath := filepath.Join(f.dir, "talk.json")
	body := `{"segments":[{"text":"one","start_ms":0,"end_ms":500,"translated":{"start_ms":0,"end_ms":300}}]}`
	if err := os.WriteFile(manifestPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	result, err := f.runner().Run(context.Background(), pipeline.Request{
		SourcePath:     f.source,
		TranslatedPath: f.translated,
		ManifestPath:   manifestPath,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if f.decoder.calls != 2 || result.DurationMs != 2000 {
		t.Fatalf("expected decoded fallback duration, got %d calls and %dms", f.decoder.calls, result.DurationMs)
	}
}
