// Package config loads, normalizes, and validates kmlc configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours the KMLC_SERVER_URL environment override. The Config
// type centralizes the server endpoint, request and poll timing, the local
// state directory that holds the stored credential, and logging settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a canonical server URL, and clear validation errors.
package config
