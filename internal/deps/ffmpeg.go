package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// MediaRequirements lists the binaries needed to decode, segment, and mux.
func MediaRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Required for audio decoding and muxing",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Required for media inspection",
		},
	}
}

// CheckMediaTools checks the ffmpeg toolchain and records the reported version
// of every available binary in Status.Detail.
func CheckMediaTools(ctx context.Context, ffmpegBinary, ffprobeBinary string) []Status {
	results := CheckBinaries(MediaRequirements(ffmpegBinary, ffprobeBinary))
	for i := range results {
		if !results[i].Available {
			continue
		}
		version, err := ToolVersion(ctx, results[i].Command)
		if err != nil {
			results[i].Available = false
			results[i].Detail = err.Error()
			continue
		}
		results[i].Detail = version
	}
	return results
}

// ToolVersion runs "<binary> -version" and returns the first line of output
// (e.g. "ffmpeg version 6.1.1 Copyright ...").
func ToolVersion(ctx context.Context, binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", fmt.Errorf("command not configured")
	}
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, binary, "-hide_banner", "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s -version failed: %w", binary, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s -version returned no output", binary)
}
