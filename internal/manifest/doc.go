// Package manifest reads and writes transcript manifests: the ordered list of
// phrases an external transcription and translation step produced for a
// source recording.
//
// Manifests are JSON or YAML, chosen by file suffix. Each segment carries its
// original interval either as integer start_ms/end_ms or as a seconds-based
// timestamp pair, and optionally the interval its translation occupies in the
// translated audio. When translated intervals are present the pipeline uses
// them as the alignment table directly; otherwise it segments the translated
// audio and pairs by position.
package manifest
