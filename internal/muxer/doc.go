// Package muxer validates input formats and writes the final container with
// the composited track as its only audio stream.
//
// Video sources are re-encoded at a fixed frame rate; audio-only sources are
// encoded from the composited track alone. Output is staged in a hidden
// sibling file and renamed into place on success.
package muxer
