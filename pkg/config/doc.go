// Package config loads application configuration from GANTRY_* environment
// variables and validates it before the server starts.
package config
