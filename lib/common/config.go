package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the settings shared by all ikv commands.
type Config struct {
	// Storage
	DataDir string // directory holding one snapshot file per database
	Codec   string // snapshot codec (gob or json)

	// Output
	Metrics bool // print query metrics after each command

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns the configuration used when no flag or env var is set.
func DefaultConfig() Config {
	return Config{
		DataDir:  "./ikv-data",
		Codec:    "gob",
		LogLevel: "warn",
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Codec", c.Codec)

	addSection("Output")
	addField("Metrics", fmt.Sprintf("%t", c.Metrics))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
