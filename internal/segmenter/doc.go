// Package segmenter finds speech intervals in decoded PCM by sliding an RMS
// window over the signal and treating sustained low energy as the gap
// between phrases.
package segmenter
