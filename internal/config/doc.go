// Package config loads, normalizes, and validates sitesync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for upload
// credentials such as SITESYNC_S3_SECRET_ACCESS_KEY. The Config type
// centralizes every knob the daemon and CLI need so the queue database,
// upload backend, and connectivity probe are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical provider names, and clear validation errors.
package config
