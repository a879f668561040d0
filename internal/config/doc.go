// Package config loads, normalizes, and validates platen's TOML
// configuration. Unknown keys are ignored; missing keys fall back to the
// documented defaults so a partial config file is always usable.
package config
