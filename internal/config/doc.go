// SPDX-License-Identifier: MPL-2.0

// Package config handles tool configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/pybundle/config.cue (or XDG equivalent on
// Linux, ~/Library/Application Support/pybundle/config.cue on macOS,
// %APPDATA%\pybundle\config.cue on Windows), with PYBUNDLE_-prefixed environment
// variables overriding file values. The package covers the artifact cache, network
// access to package indexes, logging, and build staging.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to
// ensure type safety and provide clear error messages for invalid configurations.
package config
