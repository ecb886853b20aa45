// Package config loads, normalizes, and validates blurchain configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BLURCHAIN_NTFY_TOPIC. The Config type centralizes every knob the CLI and the
// scheduler need so staging and output directories are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
