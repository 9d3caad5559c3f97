// Package config loads, validates, and normalizes Scribe configuration.
package config
