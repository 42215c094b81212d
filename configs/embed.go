// Package configs embeds the templates written by `ha-macs init`.
package configs

import (
	_ "embed"
)

// ConfigYAML is the config.yaml template with every key at its default.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// EnvExample is the .env template listing the supported environment variables.
//
//go:embed .env.example
var EnvExample []byte
