// Package config loads Accord's configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file, and ACCORD_-prefixed environment variables, each overriding the
// previous one.
package config
