// Package main hosts the dubsync CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds the structured
// logger, and hands work to the internal packages: dub runs the full
// pipeline, segment prints the speech intervals of a single file, doctor
// checks external tools and directories, and config scaffolds or prints the
// configuration.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
