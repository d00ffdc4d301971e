// Package config loads, normalizes, and validates podforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as RUNPOD_API_KEY and PRINTIFY_API_TOKEN. The
// Config type centralizes every knob the daemon and CLI need so engine sizing,
// collaborator credentials, and the state backend are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
