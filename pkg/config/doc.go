// Package config loads the service configuration from an optional .env file,
// an optional YAML file and environment variable overrides.
package config
