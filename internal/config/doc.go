// Package config provides YAML configuration loading and validation for
// the dictation service, with defaults for every tunable and an
// environment fallback for the API key.
package config
