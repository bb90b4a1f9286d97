// Package config loads the client configuration from a YAML file with
// ${ENV_VAR} expansion, duration parsing, defaulting, and validation.
package config
