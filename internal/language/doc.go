// Package language normalizes user-supplied language names and codes.
//
// The dub command accepts "es", "spa", "es-MX", or "spanish" for the target
// language and needs a three-letter code for the audio stream metadata.
// Common languages resolve through a fixed table; everything else goes
// through golang.org/x/text BCP 47 parsing.
package language
