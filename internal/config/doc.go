// Package config defines the daemon settings and provides helpers to load,
// validate and save them in YAML format.
//
// Values come from Defaults, then the YAML file, then an optional .env file and
// STG_* environment variables (ApplyEnvironment).
package config
