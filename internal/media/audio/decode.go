package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"dubsync/internal/services"
)

type commandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// FFmpegDecoder decodes the first audio stream of any ffmpeg-readable file to
// interleaved s16 PCM at a fixed sample rate and channel count.
type FFmpegDecoder struct {
	binary     string
	sampleRate int
	channels   int
	run        commandRunner
}

// NewFFmpegDecoder returns a decoder that normalizes every input to the given
// format, so original and translated tracks can be mixed sample for sample.
func NewFFmpegDecoder(binary string, sampleRate, channels int) *FFmpegDecoder {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegDecoder{
		binary:     binary,
		sampleRate: sampleRate,
		channels:   channels,
		run:        defaultCommandRunner,
	}
}

// WithCommandRunner overrides ffmpeg execution (primarily for tests).
func (d *FFmpegDecoder) WithCommandRunner(run func(ctx context.Context, binary string, args ...string) ([]byte, error)) *FFmpegDecoder {
	if d == nil {
		return nil
	}
	if run == nil {
		d.run = defaultCommandRunner
		return d
	}
	d.run = run
	return d
}

// Decode runs ffmpeg and returns the decoded PCM.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (Buffer, error) {
	if d == nil {
		return Buffer{}, services.Wrap(services.ErrValidation, "decode", "init", "decoder unavailable", nil)
	}
	if d.sampleRate <= 0 || d.channels <= 0 {
		return Buffer{}, services.Wrap(services.ErrValidation, "decode", "init", fmt.Sprintf("invalid output format %d Hz/%d ch", d.sampleRate, d.channels), nil)
	}
	output, err := d.run(ctx, d.binary, d.args(path)...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Buffer{}, services.Wrap(services.ErrExternalTool, "decode", "ffmpeg", d.binary, err)
		}
		return Buffer{}, services.Wrap(services.ErrDecode, "decode", "ffmpeg", path, err)
	}
	buf := Buffer{
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Samples:    BytesToSamples(output),
	}
	if rem := len(buf.Samples) % d.channels; rem != 0 {
		buf.Samples = buf.Samples[:len(buf.Samples)-rem]
	}
	if len(buf.Samples) == 0 {
		return Buffer{}, services.Wrap(services.ErrDecode, "decode", "ffmpeg", path, errors.New("no audio samples decoded"))
	}
	return buf, nil
}

func (d *FFmpegDecoder) args(path string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vn",
		"-map", "0:a:0",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.sampleRate),
		"-ac", strconv.Itoa(d.channels),
		"-f", "s16le",
		"pipe:1",
	}
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
