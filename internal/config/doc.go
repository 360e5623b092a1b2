// Package config defines the mirror settings and helpers to load, validate and
// save them in YAML format.
//
// Values from the YAML file can be overridden by environment variables, which
// may themselves come from a .env file next to the binary.
package config
