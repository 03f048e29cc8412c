// Package config loads, normalizes, and validates dubsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DUBSYNC_FFMPEG. The Config type is passed explicitly into every pipeline
// stage; nothing reads configuration from package state.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
