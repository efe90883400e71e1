// Package config defines the agent settings and provides helpers to load,
// validate and save them in YAML format.
//
// Keys absent from the file keep the values returned by Default.
package config
