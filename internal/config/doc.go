// Package config loads mdmath settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults (Default)
//  2. a TOML or YAML file, chosen by extension
//  3. MDMATH_* environment variables
//
// Watch reloads the file when it changes on disk so colour and scale can
// be adjusted while the editor runs.
package config
