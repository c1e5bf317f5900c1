// Package collection exposes the coordinator that owns the enable, disable
// and trigger verbs for external threat-feed collection. Route handlers and
// schedulers go through this façade only.
package collection

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blacklist-hub/blacklist/collection/authlog"
	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/collection/protection"
	"github.com/blacklist-hub/blacklist/collection/status"
	"github.com/blacklist-hub/blacklist/collector"
	"github.com/blacklist-hub/blacklist/database/models"
)

// Stale artifacts left behind by earlier collection runs, relative to the
// data directory.
var artifactPatterns = []string{
	"regtech_*.xlsx",
	"secudium_*.xlsx",
	"blacklist_*.csv",
	"*.download.tmp",
}

// Scratch directories recreated empty by a clear.
var scratchDirs = []string{"downloads", "exports"}

// EnableOptions controls Coordinator.Enable.
type EnableOptions struct {
	// Sources to switch on; empty means every known source.
	Sources          []string
	ClearDataFirst   bool
	BypassProtection bool
	Reason           string
}

// DefaultEnableOptions matches the legacy call shape: clear stale data, honor
// protection, reason "manual".
func DefaultEnableOptions() EnableOptions {
	return EnableOptions{ClearDataFirst: true, Reason: "manual"}
}

type ClearResult struct {
	FilesRemoved       int   `json:"files_removed"`
	DirectoriesCleaned int   `json:"directories_cleaned"`
	AuthRecordsCleared int64 `json:"auth_records_cleared"`
}

type EnableResult struct {
	Success          bool         `json:"success"`
	Error            string       `json:"error,omitempty"`
	Reason           string       `json:"reason"`
	ProtectionActive bool         `json:"protection_active,omitempty"`
	Enabled          bool         `json:"enabled"`
	Sources          []string     `json:"sources,omitempty"`
	DataCleared      bool         `json:"data_cleared"`
	ClearResult      *ClearResult `json:"clear_result,omitempty"`
	BypassProtection bool         `json:"bypass_protection"`
	Timestamp        time.Time    `json:"timestamp"`
}

type DisableResult struct {
	Success   bool      `json:"success"`
	Enabled   bool      `json:"enabled"`
	Timestamp time.Time `json:"timestamp"`
}

type TriggerResult struct {
	Success        bool      `json:"success"`
	Source         string    `json:"source"`
	Error          string    `json:"error,omitempty"`
	Message        string    `json:"message,omitempty"`
	CollectedCount int       `json:"collected_count,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Coordinator orchestrates the config store, attempt tracker, protection
// guard and collectors. Construct one per process and inject it where needed.
type Coordinator struct {
	config   *configstore.Store
	tracker  *authlog.Tracker
	guard    *protection.Guard
	status   *status.Aggregator
	registry *collector.Registry
	dataDir  string
}

// New wires the coordinator. On first run it persists the initial config with
// environment-derived protection, and it always probes the rapid-restart
// detector once, logging rather than failing when it trips.
func New(config *configstore.Store, tracker *authlog.Tracker, guard *protection.Guard,
	agg *status.Aggregator, registry *collector.Registry, dataDir string) *Coordinator {

	c := &Coordinator{
		config:   config,
		tracker:  tracker,
		guard:    guard,
		status:   agg,
		registry: registry,
		dataDir:  dataDir,
	}
	if !config.Exists() {
		cfg := config.CreateInitialWithProtection()
		slog.Info("initial collection config created",
			"enabled", cfg.Enabled, "force_disabled", cfg.ForceDisabled)
	}
	if guard.DetectRapidRestart() {
		slog.Warn("rapid restart detected, collection enable will be blocked")
	}
	return c
}

// Enable turns collection on. Unless explicitly bypassed, the protection
// guard is consulted first and an unsafe verdict aborts without mutating
// anything.
func (c *Coordinator) Enable(opts EnableOptions) EnableResult {
	now := time.Now()
	if opts.Reason == "" {
		opts.Reason = "manual"
	}

	if !opts.BypassProtection {
		safe, reason := c.guard.IsCollectionSafeToEnable()
		if !safe {
			return EnableResult{
				Success:          false,
				Error:            "protection blocked",
				Reason:           reason,
				ProtectionActive: true,
				Timestamp:        now,
			}
		}
	} else {
		// Explicit escape hatch; keep it loud and auditable.
		slog.Warn("collection enabled with protection bypass", "reason", opts.Reason)
	}

	var clearResult *ClearResult
	if opts.ClearDataFirst {
		result := c.ClearAllData()
		clearResult = &result
	}

	cfg := c.config.Load()
	cfg.Enabled = true
	cfg.EnabledAt = &now
	cfg.EnabledReason = opts.Reason
	cfg.BypassProtection = opts.BypassProtection

	targets := opts.Sources
	if len(targets) == 0 {
		targets = knownSources(cfg)
	}
	for _, name := range targets {
		sc := cfg.Sources[name]
		sc.Enabled = true
		sc.EnabledAt = &now
		cfg.Sources[name] = sc
	}
	if err := c.config.Save(cfg); err != nil {
		slog.Warn("collection config save failed during enable", "error", err)
	}
	if _, err := c.tracker.Reset(""); err != nil {
		slog.Warn("auth attempt reset failed during enable", "error", err)
	}

	return EnableResult{
		Success:          true,
		Enabled:          true,
		Sources:          targets,
		DataCleared:      opts.ClearDataFirst,
		ClearResult:      clearResult,
		BypassProtection: opts.BypassProtection,
		Reason:           opts.Reason,
		Timestamp:        now,
	}
}

// Disable turns collection off for the master switch and every source.
// Disabling is always safe, so no protection check applies.
func (c *Coordinator) Disable() DisableResult {
	cfg := c.config.Load()
	cfg.Enabled = false
	for name, sc := range cfg.Sources {
		sc.Enabled = false
		cfg.Sources[name] = sc
	}
	if err := c.config.Save(cfg); err != nil {
		slog.Warn("collection config save failed during disable", "error", err)
	}
	return DisableResult{Success: true, Enabled: false, Timestamp: time.Now()}
}

// ClearAllData removes stale collector artifacts, recreates the scratch
// directories and clears failed auth attempts. Individual removal failures
// are logged and skipped; the counts report what actually happened.
func (c *Coordinator) ClearAllData() ClearResult {
	result := ClearResult{}

	for _, pattern := range artifactPatterns {
		matches, err := filepath.Glob(filepath.Join(c.dataDir, pattern))
		if err != nil {
			slog.Warn("artifact glob failed", "pattern", pattern, "error", err)
			continue
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				slog.Warn("artifact remove failed", "path", path, "error", err)
				continue
			}
			result.FilesRemoved++
		}
	}

	for _, dir := range scratchDirs {
		path := filepath.Join(c.dataDir, dir)
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("scratch dir remove failed", "path", path, "error", err)
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			slog.Warn("scratch dir recreate failed", "path", path, "error", err)
			continue
		}
		result.DirectoriesCleaned++
	}

	cleared, err := c.tracker.Reset("")
	if err == nil {
		result.AuthRecordsCleared = cleared
	}
	return result
}

// TriggerCollection runs one collection for the named source, gated on the
// master switch, the per-source switch and the auth block state. The outcome
// is recorded in the attempt log either way.
func (c *Coordinator) TriggerCollection(ctx context.Context, source string) TriggerResult {
	now := time.Now()
	cfg := c.config.Load()
	if !cfg.Enabled {
		return TriggerResult{Success: false, Source: source, Error: "collection disabled", Timestamp: now}
	}
	if !cfg.Sources[source].Enabled {
		return TriggerResult{Success: false, Source: source, Error: "source disabled", Timestamp: now}
	}
	if blocked, reason := c.tracker.IsSourceBlocked(source); blocked {
		return TriggerResult{Success: false, Source: source, Error: reason, Timestamp: now}
	}

	col, ok := c.registry.Get(source)
	if !ok {
		return TriggerResult{Success: false, Source: source, Error: "unknown source", Timestamp: now}
	}

	res := col.Collect(ctx)
	c.tracker.Record(source, res.Success, "", res.Message)
	if res.Success {
		collectedAt := time.Now()
		if _, err := c.config.UpdateSourceConfig(source, configstore.SourceUpdate{
			LastCollection: &collectedAt,
		}); err != nil {
			slog.Warn("last collection stamp failed", "source", source, "error", err)
		}
	}
	return TriggerResult{
		Success:        res.Success,
		Source:         source,
		Message:        res.Message,
		CollectedCount: res.CollectedCount,
		Timestamp:      time.Now(),
	}
}

func knownSources(cfg *configstore.CollectionConfig) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, name := range configstore.DefaultSources {
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for name := range cfg.Sources {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// Thin delegations kept for the legacy call shapes.

func (c *Coordinator) IsCollectionEnabled(source string) bool {
	return c.status.IsCollectionEnabled(source)
}

func (c *Coordinator) GetStatus() status.Snapshot {
	return c.status.GetStatus()
}

func (c *Coordinator) GetDetailedStatus() status.DetailedSnapshot {
	return c.status.GetDetailedStatus()
}

func (c *Coordinator) GetCollectionSummary() status.Summary {
	return c.status.GetCollectionSummary()
}

func (c *Coordinator) RecordAuthAttempt(source string, success bool, clientIP, details string) {
	c.tracker.Record(source, success, clientIP, details)
}

func (c *Coordinator) GetAuthStatistics(source string, hours int) authlog.SourceStats {
	return c.tracker.Statistics(source, hours)
}

func (c *Coordinator) GetOverallAuthStatistics(hours int) authlog.OverallStats {
	return c.tracker.OverallStatistics(hours)
}

func (c *Coordinator) GetRecentAuthAttempts(source string, limit int) []models.AuthAttempt {
	return c.tracker.RecentAttempts(source, limit)
}

func (c *Coordinator) ResetAuthAttempts(source string) (int64, error) {
	return c.tracker.Reset(source)
}

func (c *Coordinator) CleanupAuthAttempts(days int) (int64, error) {
	return c.tracker.CleanupOld(days)
}

func (c *Coordinator) ResetProtectionState() protection.ResetResult {
	return c.guard.ResetProtectionState()
}

func (c *Coordinator) CreateProtectionBypass(reason string, durationMinutes int) (*protection.Bypass, error) {
	return c.guard.CreateBypass(reason, durationMinutes)
}

func (c *Coordinator) ValidateCollectionRequirements() status.Validation {
	return c.status.ValidateCollectionRequirements()
}

func (c *Coordinator) KnownSources() []string {
	return knownSources(c.config.Load())
}
