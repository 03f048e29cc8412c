// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Prober: Inspect bound to a configured binary
//
// Durations are converted to milliseconds with decimal arithmetic so
// "56.752000" becomes exactly 56752.
package ffprobe
