package muxer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"dubsync/internal/config"
	"dubsync/internal/fileutil"
	langpkg "dubsync/internal/language"
	"dubsync/internal/logging"
	"dubsync/internal/services"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Request describes one mux job.
type Request struct {
	SourcePath string
	// TrackPath is the composited WAV that becomes the only audio stream.
	TrackPath  string
	OutputPath string
	Kind       Kind
	// Language is an optional target language in any form language.ToISO3 accepts.
	Language string
}

// Muxer re-encodes a source with a replacement audio track using ffmpeg.
type Muxer struct {
	logger     *slog.Logger
	binary     string
	frameRate  int
	videoCodec string
	audioCodec string
	run        commandRunner
}

// NewMuxer constructs a muxer from configuration.
func NewMuxer(cfg *config.Config, logger *slog.Logger) *Muxer {
	m := &Muxer{
		logger:     logging.NewComponentLogger(logger, "muxer"),
		binary:     "ffmpeg",
		frameRate:  30,
		videoCodec: "libx264",
		audioCodec: "aac",
		run:        defaultMuxerCommandRunner,
	}
	if cfg != nil {
		m.binary = cfg.FFmpegBinary()
		m.frameRate = cfg.Mux.FrameRate
		m.videoCodec = cfg.Mux.VideoCodec
		m.audioCodec = cfg.Mux.AudioCodec
	}
	return m
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (m *Muxer) WithCommandRunner(r func(ctx context.Context, name string, args ...string) error) *Muxer {
	if m != nil && r != nil {
		m.run = r
	}
	return m
}

// Mux writes the output through a hidden temp file beside it and renames it
// into place only when ffmpeg succeeds. The temp file is removed on failure.
func (m *Muxer) Mux(ctx context.Context, req Request) (string, error) {
	if m == nil {
		return "", services.Wrap(services.ErrEncodeMux, "mux", "init", "muxer not initialized", nil)
	}
	if strings.TrimSpace(req.SourcePath) == "" || strings.TrimSpace(req.TrackPath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return "", services.Wrap(services.ErrValidation, "mux", "request", "source, track, and output paths are required", nil)
	}
	if req.Kind != KindVideo && req.Kind != KindAudio {
		return "", services.Wrap(services.ErrValidation, "mux", "request", fmt.Sprintf("unknown source kind %q", req.Kind), nil)
	}
	if _, err := os.Stat(req.TrackPath); err != nil {
		return "", services.Wrap(services.ErrEncodeMux, "mux", "track", "composited track missing", err)
	}

	tmpPath := filepath.Join(filepath.Dir(req.OutputPath), ".dubsync-"+filepath.Base(req.OutputPath))
	args := m.buildArgs(req, tmpPath)

	m.logger.Debug("executing ffmpeg mux",
		logging.String("source", req.SourcePath),
		logging.String("output", req.OutputPath),
		logging.String("kind", string(req.Kind)),
		logging.String("language", req.Language),
	)

	if err := m.run(ctx, m.binary, args...); err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(err, exec.ErrNotFound) {
			return "", services.Wrap(services.ErrExternalTool, "mux", "ffmpeg", m.binary, err)
		}
		return "", services.Wrap(services.ErrEncodeMux, "mux", "ffmpeg", filepath.Base(req.OutputPath), err)
	}

	if _, err := os.Stat(tmpPath); err != nil {
		return "", services.Wrap(services.ErrEncodeMux, "mux", "verify", "ffmpeg did not produce output file", err)
	}

	if err := fileutil.MoveFile(tmpPath, req.OutputPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrEncodeMux, "mux", "publish", req.OutputPath, err)
	}

	m.logger.Info("output written",
		logging.String(logging.FieldEventType, "mux_complete"),
		logging.String("output", req.OutputPath),
		logging.String("kind", string(req.Kind)),
	)
	return req.OutputPath, nil
}

func (m *Muxer) buildArgs(req Request, outputPath string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}

	switch req.Kind {
	case KindVideo:
		args = append(args,
			"-i", req.SourcePath,
			"-i", req.TrackPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", m.videoCodec,
			"-r", strconv.Itoa(m.frameRate),
			"-c:a", m.audioCodec,
		)
	case KindAudio:
		args = append(args,
			"-i", req.TrackPath,
			"-map", "0:a:0",
			"-c:a", audioCodecFor(req.OutputPath, m.audioCodec),
		)
	}

	if lang := strings.TrimSpace(req.Language); lang != "" {
		args = append(args,
			"-metadata:s:a:0", "language="+langpkg.ToISO3(lang),
			"-metadata:s:a:0", "title="+langpkg.DisplayName(lang),
		)
	}

	if strings.EqualFold(filepath.Ext(req.OutputPath), ".mp4") {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, outputPath)
}

// audioCodecFor picks an encoder the output container can hold.
func audioCodecFor(outputPath, configured string) string {
	if strings.EqualFold(filepath.Ext(outputPath), ".mp3") {
		return "libmp3lame"
	}
	return configured
}

func defaultMuxerCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
