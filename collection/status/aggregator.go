// Package status composes the config store, protection guard, attempt tracker
// and environment into consistent read-only snapshots.
package status

import (
	"errors"
	"fmt"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"gorm.io/gorm"

	"github.com/blacklist-hub/blacklist/collection/authlog"
	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/collection/envcfg"
	"github.com/blacklist-hub/blacklist/collection/protection"
	"github.com/blacklist-hub/blacklist/database/models"
)

// Host metrics are best effort and not correctness-bearing, so they may be
// cached briefly. Config, protection and attempt reads are always live.
const healthCacheTTL = 30 * time.Second

const healthCacheKey = "system_health"

// SourceStatus is the per-source slice of a snapshot.
type SourceStatus struct {
	Enabled               bool       `json:"enabled"`
	LastCollection        *time.Time `json:"last_collection,omitempty"`
	Blocked               bool       `json:"blocked"`
	BlockReason           string     `json:"block_reason"`
	CredentialsConfigured bool       `json:"credentials_configured"`
}

type ConfigSummary struct {
	SourcesConfigured int                        `json:"sources_configured"`
	SafetySettings    configstore.SafetySettings `json:"safety_settings"`
	ConfigLastUpdated time.Time                  `json:"config_last_updated"`
}

// Snapshot is the coherent view served to dashboards and the admin API.
type Snapshot struct {
	Enabled          bool                    `json:"enabled"`
	SafeToEnable     bool                    `json:"safe_to_enable"`
	ProtectionReason string                  `json:"protection_reason"`
	Environment      envcfg.Snapshot         `json:"environment"`
	Protection       protection.Status       `json:"protection"`
	Sources          map[string]SourceStatus `json:"sources"`
	Authentication   authlog.OverallStats    `json:"authentication"`
	LastUpdated      time.Time               `json:"last_updated"`
	ConfigSummary    ConfigSummary           `json:"config_summary"`
	Error            string                  `json:"error,omitempty"`
}

// ConfigHistoryEntry is one master-switch flip from the audit log.
type ConfigHistoryEntry struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemHealth reports host metrics when available.
type SystemHealth struct {
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	CPUPercent    float64 `json:"cpu_percent"`
	Note          string  `json:"note,omitempty"`
}

// DetailedSnapshot is the diagnostics superset of Snapshot.
type DetailedSnapshot struct {
	Snapshot
	RecentAuthAttempts []models.AuthAttempt `json:"recent_auth_attempts"`
	ProtectionBypass   *protection.Bypass   `json:"protection_bypass,omitempty"`
	ConfigHistory      []ConfigHistoryEntry `json:"config_history"`
	SystemHealth       SystemHealth         `json:"system_health"`
}

// Summary is the compact dashboard view.
type Summary struct {
	Enabled   bool            `json:"enabled"`
	Safe      bool            `json:"safe"`
	Reason    string          `json:"reason"`
	Sources   map[string]bool `json:"sources"`
	LastCheck time.Time       `json:"last_check"`
}

// Validation is the result of checking collection prerequisites.
type Validation struct {
	Valid        bool            `json:"valid"`
	Issues       []string        `json:"issues"`
	Warnings     []string        `json:"warnings"`
	Requirements map[string]bool `json:"requirements"`
}

// Aggregator never mutates the components it reads from.
type Aggregator struct {
	config  *configstore.Store
	guard   *protection.Guard
	tracker *authlog.Tracker
	db      *gorm.DB

	healthCache *gocache.Cache
}

func New(config *configstore.Store, guard *protection.Guard, tracker *authlog.Tracker, db *gorm.DB) *Aggregator {
	return &Aggregator{
		config:      config,
		guard:       guard,
		tracker:     tracker,
		db:          db,
		healthCache: gocache.New(healthCacheTTL, time.Minute),
	}
}

// GetStatus builds the full snapshot. It never panics out to the caller; any
// internal failure produces a degraded, disabled snapshot instead.
func (a *Aggregator) GetStatus() (snapshot Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("status aggregation panicked: %v", r)
			snapshot = degradedSnapshot(fmt.Sprintf("%v", r))
		}
	}()

	cfg := a.config.Load()
	safe, reason := a.guard.IsCollectionSafeToEnable()
	env := envcfg.Read()

	sources := make(map[string]SourceStatus, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		blocked, blockReason := a.tracker.IsSourceBlocked(name)
		sources[name] = SourceStatus{
			Enabled:               sc.Enabled,
			LastCollection:        sc.LastCollection,
			Blocked:               blocked,
			BlockReason:           blockReason,
			CredentialsConfigured: env.SourceConfigured(name),
		}
	}

	return Snapshot{
		Enabled:          cfg.Enabled,
		SafeToEnable:     safe,
		ProtectionReason: reason,
		Environment:      env,
		Protection:       a.guard.ProtectionStatus(),
		Sources:          sources,
		Authentication:   a.tracker.OverallStatistics(24),
		LastUpdated:      time.Now(),
		ConfigSummary: ConfigSummary{
			SourcesConfigured: len(cfg.Sources),
			SafetySettings:    cfg.SafetySettings,
			ConfigLastUpdated: cfg.UpdatedAt,
		},
	}
}

func degradedSnapshot(cause string) Snapshot {
	return Snapshot{
		Enabled:          false,
		SafeToEnable:     false,
		ProtectionReason: "status retrieval error: " + cause,
		LastUpdated:      time.Now(),
		Error:            cause,
	}
}

// GetDetailedStatus adds recent attempts, the bypass record, the flag-flip
// history and host health to the snapshot.
func (a *Aggregator) GetDetailedStatus() DetailedSnapshot {
	detailed := DetailedSnapshot{
		Snapshot:           a.GetStatus(),
		RecentAuthAttempts: a.tracker.RecentAttempts("", 20),
		ProtectionBypass:   a.guard.CheckBypass(),
		ConfigHistory:      a.configHistory(10),
		SystemHealth:       a.systemHealth(),
	}
	return detailed
}

func (a *Aggregator) configHistory(limit int) []ConfigHistoryEntry {
	cfg := a.config.Load()
	history := []ConfigHistoryEntry{{Enabled: cfg.Enabled, UpdatedAt: cfg.UpdatedAt}}
	if a.db == nil {
		return history
	}
	var flags []models.CollectionFlag
	if err := a.db.Order("id desc").Limit(limit).Find(&flags).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("config history query failed: %v", err)
		}
		return history
	}
	for _, flag := range flags {
		history = append(history, ConfigHistoryEntry{
			Enabled:   flag.Enabled,
			UpdatedAt: flag.UpdatedAt.ToTime(),
		})
	}
	return history
}

func (a *Aggregator) systemHealth() SystemHealth {
	if cached, ok := a.healthCache.Get(healthCacheKey); ok {
		return cached.(SystemHealth)
	}

	health := SystemHealth{}
	collected := false
	if vm, err := mem.VirtualMemory(); err == nil {
		health.MemoryPercent = vm.UsedPercent
		collected = true
	}
	if du, err := disk.Usage("/"); err == nil {
		health.DiskPercent = du.UsedPercent
		collected = true
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health.CPUPercent = percents[0]
		collected = true
	}
	if !collected {
		health.Note = "host metrics unavailable"
	}
	a.healthCache.Set(healthCacheKey, health, gocache.DefaultExpiration)
	return health
}

// IsCollectionEnabled is the single authoritative gate callers must pass
// before dispatching a collection job. With a source it additionally requires
// the source to be enabled and not blocked.
func (a *Aggregator) IsCollectionEnabled(source string) bool {
	cfg := a.config.Load()
	if !cfg.Enabled {
		return false
	}
	if safe, _ := a.guard.IsCollectionSafeToEnable(); !safe {
		return false
	}
	if source == "" {
		return true
	}
	if !cfg.Sources[source].Enabled {
		return false
	}
	if blocked, _ := a.tracker.IsSourceBlocked(source); blocked {
		return false
	}
	return true
}

// GetCollectionSummary is the compact dashboard view: per-source usability
// under the current gates.
func (a *Aggregator) GetCollectionSummary() Summary {
	cfg := a.config.Load()
	safe, reason := a.guard.IsCollectionSafeToEnable()

	sources := make(map[string]bool, len(cfg.Sources))
	for name := range cfg.Sources {
		sources[name] = a.IsCollectionEnabled(name)
	}
	return Summary{
		Enabled:   cfg.Enabled,
		Safe:      safe,
		Reason:    reason,
		Sources:   sources,
		LastCheck: time.Now(),
	}
}

// ValidateCollectionRequirements checks credentials and protection clearance
// without mutating anything. Missing credentials are issues; an active
// force-disable is only a warning because it is an operator choice.
func (a *Aggregator) ValidateCollectionRequirements() Validation {
	env := envcfg.Read()
	v := Validation{
		Valid:        true,
		Issues:       []string{},
		Warnings:     []string{},
		Requirements: map[string]bool{},
	}

	for _, source := range configstore.DefaultSources {
		configured := env.SourceConfigured(source)
		v.Requirements[source+"_credentials"] = configured
		if !configured {
			v.Valid = false
			v.Issues = append(v.Issues, fmt.Sprintf("%s 자격 증명이 설정되지 않았습니다", source))
		}
	}

	if env.ForceDisableCollection {
		v.Warnings = append(v.Warnings, "환경 변수에 의해 수집이 강제 비활성화되어 있습니다")
	}

	safe, reason := a.guard.IsCollectionSafeToEnable()
	v.Requirements["protection_clear"] = safe
	if !safe {
		v.Valid = false
		v.Issues = append(v.Issues, "보호 시스템이 수집을 차단 중: "+reason)
	}
	return v
}
