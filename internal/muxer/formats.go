package muxer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"

	"dubsync/internal/services"
)

// Kind classifies a source file by the streams the output will carry.
type Kind string

const (
	// KindVideo sources keep their video stream and get a new audio track.
	KindVideo Kind = "video"
	// KindAudio sources produce an audio-only output.
	KindAudio Kind = "audio"
)

var sourceFormats = map[string]Kind{
	".mp4": KindVideo,
	".avi": KindVideo,
	".mp3": KindAudio,
}

var translatedFormats = []string{".mp3"}

// SupportedSourceExtensions returns the accepted source suffixes in sorted order.
func SupportedSourceExtensions() []string {
	exts := lo.Keys(sourceFormats)
	slices.Sort(exts)
	return exts
}

// ValidateSource checks the suffix and existence of a source file. The
// suffix is checked first so unsupported inputs fail without touching disk.
func ValidateSource(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	kind, ok := sourceFormats[ext]
	if !ok {
		return "", services.Wrap(services.ErrUnsupportedFormat, "validate", "source",
			fmt.Sprintf("%q: supported formats are %s", filepath.Base(path), strings.Join(SupportedSourceExtensions(), ", ")), nil)
	}
	if err := requireFile(path, "source"); err != nil {
		return "", err
	}
	return kind, nil
}

// ValidateTranslatedAudio checks the suffix and existence of the translated
// audio file.
func ValidateTranslatedAudio(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(translatedFormats, ext) {
		return services.Wrap(services.ErrUnsupportedFormat, "validate", "translated audio",
			fmt.Sprintf("%q: supported formats are %s", filepath.Base(path), strings.Join(translatedFormats, ", ")), nil)
	}
	return requireFile(path, "translated audio")
}

// DefaultOutputPath returns <dir>/<stem><suffix><ext> for source.
func DefaultOutputPath(source, suffix string) string {
	ext := filepath.Ext(source)
	stem := strings.TrimSuffix(filepath.Base(source), ext)
	return filepath.Join(filepath.Dir(source), stem+suffix+ext)
}

func requireFile(path, operation string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrInputNotFound, "validate", operation, path, nil)
		}
		return services.Wrap(services.ErrInputNotFound, "validate", operation, path, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrInputNotFound, "validate", operation, path+" is a directory", nil)
	}
	return nil
}
