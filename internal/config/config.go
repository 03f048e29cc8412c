package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Tools contains external binary locations.
type Tools struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// SegmentationProfile holds the silence-detection parameters for one kind of
// input track.
type SegmentationProfile struct {
	MinSilenceLenMs    int     `toml:"min_silence_len_ms"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db"`
	PaddingMs          int     `toml:"padding_ms"`
}

// Segmentation contains the profiles used for the source recording and the
// synthesized translation. The translated profile is coarser so synthesized
// speech is not split on word gaps.
type Segmentation struct {
	Original   SegmentationProfile `toml:"original"`
	Translated SegmentationProfile `toml:"translated"`
}

// Compose contains configuration for building the output track.
type Compose struct {
	// SilentOriginalAudio replaces the original track instead of mixing the
	// dub over an attenuated copy of it.
	SilentOriginalAudio bool    `toml:"silent_original_audio"`
	BackgroundGainDB    float64 `toml:"background_gain_db"`
	SampleRate          int     `toml:"sample_rate"`
	Channels            int     `toml:"channels"`
	Workers             int     `toml:"workers"`
}

// Reconcile contains configuration for fitting translated phrases into their
// original slots.
type Reconcile struct {
	Enabled bool `toml:"enabled"`
	// Tolerance is the fraction a translated phrase may exceed its slot
	// before it is sped up. Default: 0.20
	Tolerance float64 `toml:"tolerance"`
	// MaxRatio is the largest translated/original duration ratio that will be
	// scaled. Beyond it the phrase is used unscaled. Default: 3.0
	MaxRatio float64 `toml:"max_ratio"`
}

// Mux contains configuration for the final container encode.
type Mux struct {
	FrameRate    int    `toml:"frame_rate"`
	VideoCodec   string `toml:"video_codec"`
	AudioCodec   string `toml:"audio_codec"`
	OutputSuffix string `toml:"output_suffix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dubsync.
//
// Configuration sections by subsystem:
//   - Paths: scratch and log directories
//   - Tools: ffmpeg/ffprobe binaries
//   - Segmentation: silence detection for original and translated audio
//   - Compose: output track mixing
//   - Reconcile: duration fitting of translated phrases
//   - Mux: container re-encode settings
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Tools        Tools        `toml:"tools"`
	Segmentation Segmentation `toml:"segmentation"`
	Compose      Compose      `toml:"compose"`
	Reconcile    Reconcile    `toml:"reconcile"`
	Mux          Mux          `toml:"mux"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dubsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the configured scratch and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for decoding and muxing.
func (c *Config) FFmpegBinary() string {
	if value := strings.TrimSpace(c.Tools.FFmpegBinary); value != "" {
		return value
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if value := strings.TrimSpace(c.Tools.FFprobeBinary); value != "" {
		return value
	}
	return defaultFFprobeBinary
}

// Profile returns the segmentation profile with the given name
// ("original" or "translated").
func (c *Config) Profile(name string) (SegmentationProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProfileOriginal:
		return c.Segmentation.Original, nil
	case ProfileTranslated:
		return c.Segmentation.Translated, nil
	default:
		return SegmentationProfile{}, fmt.Errorf("unknown segmentation profile %q (want %q or %q)", name, ProfileOriginal, ProfileTranslated)
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
