// Package envcfg snapshots the environment knobs the collection system honors.
// Operators treat these as live switches, so callers take a fresh snapshot at
// every decision point instead of caching one at startup.
package envcfg

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvForceDisable      = "FORCE_DISABLE_COLLECTION"
	EnvCollectionEnabled = "COLLECTION_ENABLED"
	EnvRestartProtection = "RESTART_PROTECTION"
	EnvMaxAuthAttempts   = "MAX_AUTH_ATTEMPTS"

	EnvRegtechUsername  = "REGTECH_USERNAME"
	EnvRegtechPassword  = "REGTECH_PASSWORD"
	EnvRegtechBaseURL   = "REGTECH_BASE_URL"
	EnvSecudiumUsername = "SECUDIUM_USERNAME"
	EnvSecudiumPassword = "SECUDIUM_PASSWORD"
	EnvSecudiumBaseURL  = "SECUDIUM_BASE_URL"
)

// Snapshot is a point-in-time read of the collection-related environment.
type Snapshot struct {
	ForceDisableCollection bool `json:"force_disable_collection"`
	CollectionEnabledEnv   bool `json:"collection_enabled_env"`
	RestartProtection      bool `json:"restart_protection"`
	MaxAuthAttempts        int  `json:"max_auth_attempts"`

	RegtechConfigured  bool `json:"regtech_configured"`
	SecudiumConfigured bool `json:"secudium_configured"`
}

// Read takes a fresh snapshot from os.Getenv.
func Read() Snapshot {
	return Snapshot{
		// Fail closed: collection stays force-disabled until an operator
		// explicitly turns the override off.
		ForceDisableCollection: parseBool(os.Getenv(EnvForceDisable), true),
		CollectionEnabledEnv:   parseBool(os.Getenv(EnvCollectionEnabled), false),
		RestartProtection:      parseBool(os.Getenv(EnvRestartProtection), true),
		MaxAuthAttempts:        parseInt(os.Getenv(EnvMaxAuthAttempts), 10),
		RegtechConfigured:      credentialsPresent(EnvRegtechUsername, EnvRegtechPassword),
		SecudiumConfigured:     credentialsPresent(EnvSecudiumUsername, EnvSecudiumPassword),
	}
}

// SourceConfigured reports whether credentials for the named source are set.
func (s Snapshot) SourceConfigured(source string) bool {
	switch source {
	case "regtech":
		return s.RegtechConfigured
	case "secudium":
		return s.SecudiumConfigured
	default:
		return false
	}
}

// Credentials returns the username/password pair for a source, unchecked.
func Credentials(source string) (username, password string) {
	switch source {
	case "regtech":
		return os.Getenv(EnvRegtechUsername), os.Getenv(EnvRegtechPassword)
	case "secudium":
		return os.Getenv(EnvSecudiumUsername), os.Getenv(EnvSecudiumPassword)
	}
	return "", ""
}

func credentialsPresent(userVar, passVar string) bool {
	return strings.TrimSpace(os.Getenv(userVar)) != "" &&
		strings.TrimSpace(os.Getenv(passVar)) != ""
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
