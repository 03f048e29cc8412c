// Package overlay builds the dubbed audio track.
//
// Compositor places every translated phrase at the start of its original
// counterpart over a base of silence or attenuated original audio, so a long
// phrase can never push later phrases off schedule. Reconciler speeds up
// phrases that overrun their slot by more than a configured tolerance.
package overlay
