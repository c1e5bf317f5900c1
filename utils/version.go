package utils

// Set via -ldflags at build time.
var (
	CurrentVersion = "dev"
	VersionHash    = "unknown"
)
