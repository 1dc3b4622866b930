// Package config loads, normalizes, and validates fieldlink's TOML
// configuration.
package config
