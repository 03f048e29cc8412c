package pipeline

import (
	"context"
	"log/slog"
	"time"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/media/audio"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/muxer"
	"dubsync/internal/overlay"
	"dubsync/internal/timeline"
)

// Decoder turns a media file into PCM in the working format.
type Decoder interface {
	Decode(ctx context.Context, path string) (audio.Buffer, error)
}

// Prober reports container metadata.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Muxer writes the final output file.
type Muxer interface {
	Mux(ctx context.Context, req muxer.Request) (string, error)
}

// Request describes one dub.
type Request struct {
	SourcePath     string
	TranslatedPath string
	// ManifestPath optionally names a transcript manifest. Without one the
	// source is segmented to find its phrases.
	ManifestPath string
	// OutputPath defaults to the source path with the configured suffix.
	OutputPath string
	// Language tags the output audio track. The manifest language is used
	// when empty.
	Language string
}

// Result summarizes a finished dub.
type Result struct {
	RunID      string
	OutputPath string
	Kind       muxer.Kind
	Language   string
	DurationMs int64
	Table      timeline.AlignmentTable
	Placements []overlay.Placement
	Stats      overlay.Stats
	// Digest is the BLAKE3 digest of the composited PCM.
	Digest  string
	Elapsed time.Duration
}

// Runner executes dubs with a fixed configuration.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	decoder    Decoder
	prober     Prober
	muxer      Muxer
	compositor *overlay.Compositor
}

// Option customizes a Runner.
type Option func(*Runner)

// WithDecoder replaces the ffmpeg decoder.
func WithDecoder(d Decoder) Option {
	return func(r *Runner) {
		if d != nil {
			r.decoder = d
		}
	}
}

// WithProber replaces the ffprobe client.
func WithProber(p Prober) Option {
	return func(r *Runner) {
		if p != nil {
			r.prober = p
		}
	}
}

// WithMuxer replaces the ffmpeg muxer.
func WithMuxer(m Muxer) Option {
	return func(r *Runner) {
		if m != nil {
			r.muxer = m
		}
	}
}

// New builds a runner backed by the configured ffmpeg and ffprobe binaries.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		decoder:    audio.NewFFmpegDecoder(cfg.FFmpegBinary(), cfg.Compose.SampleRate, cfg.Compose.Channels),
		prober:     ffprobe.Prober{Binary: cfg.FFprobeBinary()},
		muxer:      muxer.NewMuxer(cfg, logger),
		compositor: overlay.NewCompositor(cfg, logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
