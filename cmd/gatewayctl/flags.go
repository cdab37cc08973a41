package main

import "time"

// Flag structs decouple cobra from the handlers for testing.

// GlobalFlags are persistent across all subcommands.
type GlobalFlags struct {
	EnvFile string
	Debug   bool
}

// LogsFlags configure the logs and logs-startup commands.
type LogsFlags struct {
	Lines int
}

// CleanFlags configure age-based retention for the clean command.
type CleanFlags struct {
	MaxAgeLogs    time.Duration
	MaxAgeBackups time.Duration
}
