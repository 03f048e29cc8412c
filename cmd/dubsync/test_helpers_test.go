package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"dubsync/internal/config"
	"dubsync/internal/media/audio"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/muxer"
	"dubsync/internal/pipeline"
	"dubsync/internal/services"
	"dubsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	decoder    *fakeDecoder
	muxer      *fakeMuxer
}

type fakeDecoder struct {
	buffers map[string]audio.Buffer
}

func (d *fakeDecoder) Decode(_ context.Context, path string) (audio.Buffer, error) {
	buf, ok := d.buffers[path]
	if !ok {
		return audio.Buffer{}, services.Wrap(services.ErrDecode, "decode", "ffmpeg", path, nil)
	}
	return buf, nil
}

type fakeProber struct{}

// Inspect reports one video and one audio stream with no container
// duration, so runs take their length from the decoded original.
func (fakeProber) Inspect(context.Context, string) (ffprobe.Result, error) {
	return ffprobe.Result{Streams: []ffprobe.Stream{
		{Index: 0, CodecType: "video", CodecName: "h264", AvgFrameRate: "25/1"},
		{Index: 1, CodecType: "audio", CodecName: "aac", SampleRate: "48000"},
	}}, nil
}

type fakeMuxer struct {
	requests []muxer.Request
}

func (m *fakeMuxer) Mux(_ context.Context, req muxer.Request) (string, error) {
	m.requests = append(m.requests, req)
	if err := os.WriteFile(req.OutputPath, []byte("muxed"), 0o644); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Segmentation.Translated = config.SegmentationProfile{MinSilenceLenMs: 200, SilenceThresholdDB: -30, PaddingMs: 0}
	cfg.Logging.Level = "error"
	configPath := filepath.Join(base, "dubsync.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		decoder:    &fakeDecoder{buffers: map[string]audio.Buffer{}},
		muxer:      &fakeMuxer{},
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// addMedia creates an input file and registers the PCM the fake decoder
// returns for it.
func (e *cliTestEnv) addMedia(t *testing.T, name string, spans ...testsupport.Span) string {
	t.Helper()
	path := filepath.Join(e.baseDir, name)
	testsupport.WriteFile(t, path, 16)
	e.decoder.buffers[path] = testsupport.Pattern(e.cfg.Compose.SampleRate, e.cfg.Compose.Channels, spans...)
	return path
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	var configFlag string
	ctx := newCommandContext(&configFlag)
	if env != nil {
		ctx.decoder = env.decoder
		ctx.pipelineOptions = []pipeline.Option{
			pipeline.WithDecoder(env.decoder),
			pipeline.WithProber(fakeProber{}),
			pipeline.WithMuxer(env.muxer),
		}
	}
	cmd := newRootCommandWithContext(ctx, &configFlag)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if env != nil {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
