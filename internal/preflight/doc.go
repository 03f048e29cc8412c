// Package preflight provides readiness checks for the filesystem paths and
// external binaries dubsync depends on.
//
// The pipeline calls CheckOutputLocation before decoding anything so a doomed
// run fails in milliseconds instead of after a long ffmpeg pass. The
// "dubsync doctor" command runs RunAll and CheckSystemDeps to display
// environment health.
package preflight
