package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeCompose()
	c.normalizeMux()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpegBinary = strings.TrimSpace(c.Tools.FFmpegBinary)
	if value, ok := os.LookupEnv("DUBSYNC_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Tools.FFmpegBinary = strings.TrimSpace(value)
	}
	if c.Tools.FFmpegBinary == "" {
		c.Tools.FFmpegBinary = defaultFFmpegBinary
	}
	c.Tools.FFprobeBinary = strings.TrimSpace(c.Tools.FFprobeBinary)
	if value, ok := os.LookupEnv("DUBSYNC_FFPROBE"); ok && strings.TrimSpace(value) != "" {
		c.Tools.FFprobeBinary = strings.TrimSpace(value)
	}
	if c.Tools.FFprobeBinary == "" {
		c.Tools.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeCompose() {
	if c.Compose.SampleRate == 0 {
		c.Compose.SampleRate = defaultSampleRate
	}
	if c.Compose.Channels == 0 {
		c.Compose.Channels = defaultChannels
	}
	if c.Compose.Workers <= 0 {
		c.Compose.Workers = 1
	}
}

func (c *Config) normalizeMux() {
	c.Mux.VideoCodec = strings.TrimSpace(c.Mux.VideoCodec)
	if c.Mux.VideoCodec == "" {
		c.Mux.VideoCodec = defaultMuxVideoCodec
	}
	c.Mux.AudioCodec = strings.TrimSpace(c.Mux.AudioCodec)
	if c.Mux.AudioCodec == "" {
		c.Mux.AudioCodec = defaultMuxAudioCodec
	}
	c.Mux.OutputSuffix = strings.TrimSpace(c.Mux.OutputSuffix)
	if c.Mux.OutputSuffix == "" {
		c.Mux.OutputSuffix = defaultMuxOutputSuffix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
