// Package timeline defines speech intervals and text segments and pairs
// original phrases with their translated counterparts.
//
// Pairing is positional: the i-th phrase of the source is assumed to be
// translated by the i-th phrase of the translated track. IDs travel with each
// segment for logging and manifests but do not drive the pairing.
package timeline
