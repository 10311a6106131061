// Package config loads the YAML configuration file read by cmd/ledgerd
// at startup. cmd/randomd does not read it.
package config
