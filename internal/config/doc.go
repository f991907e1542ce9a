// Package config defines the application configuration structures and
// loading logic. Configuration is read from an optional YAML file and
// environment variables (VIDSMITH_ prefix, env taking precedence), then
// validated before use.
package config
