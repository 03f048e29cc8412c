// Package pipeline runs one dub from source and translated audio to the
// muxed output file.
//
// A run validates both inputs before decoding anything, takes an exclusive
// lock on the output path, decodes the source and translated audio to a
// common PCM format, builds the alignment table from a transcript manifest
// or from silence segmentation of both tracks, composites the translated
// phrases over the base track, and hands the intermediate WAV to the muxer.
// The intermediate lives in a per-run scratch directory that is removed on
// every exit path, and the output appears only when every stage succeeded.
//
// Decoder, prober, and muxer are interfaces so tests can drive the whole run
// without ffmpeg.
package pipeline
