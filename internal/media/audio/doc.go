// Package audio holds the in-memory PCM representation shared by the
// segmenter and compositor, plus the ffmpeg decoder and WAV artifact I/O
// around it.
//
// Every track in a run is decoded to the same sample rate and channel count,
// so buffers can be sliced by millisecond and mixed sample for sample.
package audio
