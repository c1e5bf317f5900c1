// Package configstore persists the collection configuration document.
//
// The JSON file is the primary copy. Every save also appends the master
// enabled flag as a row to the database, which serves both as a fallback when
// the file is unreadable and as an audit trail of flag flips. Reads never fail
// out to the caller; they degrade file -> database -> built-in defaults.
package configstore

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/blacklist-hub/blacklist/collection/envcfg"
	"github.com/blacklist-hub/blacklist/database/models"
)

// DefaultSources are the external threat feeds known to this deployment.
var DefaultSources = []string{"regtech", "secudium"}

type SafetySettings struct {
	MaxAuthAttempts    int  `json:"max_auth_attempts"`
	RestartProtection  bool `json:"restart_protection"`
	AuthTimeoutMinutes int  `json:"auth_timeout_minutes"`
}

func DefaultSafetySettings() SafetySettings {
	return SafetySettings{
		MaxAuthAttempts:    10,
		RestartProtection:  true,
		AuthTimeoutMinutes: 30,
	}
}

type SourceConfig struct {
	Enabled        bool       `json:"enabled"`
	LastCollection *time.Time `json:"last_collection,omitempty"`
	EnabledAt      *time.Time `json:"enabled_at,omitempty"`
}

// CollectionConfig is the persisted document, one current version per
// deployment. Full-document replace on save, last writer wins.
type CollectionConfig struct {
	Enabled            bool                    `json:"enabled"`
	Sources            map[string]SourceConfig `json:"sources"`
	SafetySettings     SafetySettings          `json:"safety_settings"`
	ForceDisabled      bool                    `json:"force_disabled"`
	ForceDisableReason string                  `json:"force_disable_reason,omitempty"`
	EnabledAt          *time.Time              `json:"enabled_at,omitempty"`
	EnabledReason      string                  `json:"enabled_reason,omitempty"`
	BypassProtection   bool                    `json:"bypass_protection"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// SourceUpdate is a partial update of one source entry; nil fields are left
// untouched.
type SourceUpdate struct {
	Enabled        *bool
	LastCollection *time.Time
	EnabledAt      *time.Time
}

// SafetyUpdate is a partial update of the safety settings.
type SafetyUpdate struct {
	MaxAuthAttempts    *int
	RestartProtection  *bool
	AuthTimeoutMinutes *int
}

// Store reads and writes the collection configuration. Writes are serialized
// in-process; cross-process races resolve last-writer-wins.
type Store struct {
	mu   sync.Mutex
	path string
	db   *gorm.DB
}

func New(path string, db *gorm.DB) *Store {
	return &Store{path: path, db: db}
}

// Path returns the location of the config document.
func (s *Store) Path() string { return s.path }

// Exists reports whether the config document has been written yet.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func defaultConfig(now time.Time) *CollectionConfig {
	sources := make(map[string]SourceConfig, len(DefaultSources))
	for _, name := range DefaultSources {
		sources[name] = SourceConfig{Enabled: false}
	}
	return &CollectionConfig{
		Enabled:        false,
		Sources:        sources,
		SafetySettings: DefaultSafetySettings(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Load returns the current configuration. It never fails: an unreadable file
// falls back to the newest database flag row for the enabled bit, and if that
// is also unavailable a default (disabled) config is returned.
func (s *Store) Load() *CollectionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() *CollectionConfig {
	data, err := os.ReadFile(s.path)
	if err == nil {
		var cfg CollectionConfig
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr == nil {
			if cfg.Sources == nil {
				cfg.Sources = map[string]SourceConfig{}
			}
			if cfg.SafetySettings.MaxAuthAttempts <= 0 {
				cfg.SafetySettings = DefaultSafetySettings()
			}
			return &cfg
		} else {
			log.Printf("collection config parse failed, trying database fallback: %v", jsonErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("collection config read failed, trying database fallback: %v", err)
	}

	cfg := defaultConfig(time.Now())
	if s.db != nil {
		var flag models.CollectionFlag
		if dbErr := s.db.Order("id desc").First(&flag).Error; dbErr == nil {
			cfg.Enabled = flag.Enabled
			cfg.UpdatedAt = flag.UpdatedAt.ToTime()
		} else if !errors.Is(dbErr, gorm.ErrRecordNotFound) {
			log.Printf("collection flag fallback read failed: %v", dbErr)
		}
	}
	return cfg
}

// Save writes the full document and appends the enabled flag to the database
// log. Either write failing is logged and reported, but the caller's copy
// stays authoritative until the next Load.
func (s *Store) Save(cfg *CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(cfg)
}

func (s *Store) saveLocked(cfg *CollectionConfig) error {
	cfg.UpdatedAt = time.Now()

	var firstErr error
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		firstErr = err
	} else {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			log.Printf("collection config dir create failed: %v", err)
		}
		if err := os.WriteFile(s.path, data, 0o644); err != nil {
			log.Printf("collection config write failed: %v", err)
			firstErr = err
		}
	}

	if s.db != nil {
		flag := models.CollectionFlag{
			Enabled:   cfg.Enabled,
			UpdatedAt: models.FromTime(cfg.UpdatedAt),
		}
		if err := s.db.Create(&flag).Error; err != nil {
			log.Printf("collection flag log append failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CreateInitialWithProtection builds and persists the first config. When the
// environment force-disables collection the document is stamped accordingly
// and the master switch stays off no matter what later toggles wrote before
// this process started.
func (s *Store) CreateInitialWithProtection() *CollectionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := defaultConfig(time.Now())
	env := envcfg.Read()
	if env.ForceDisableCollection {
		cfg.Enabled = false
		cfg.ForceDisabled = true
		cfg.ForceDisableReason = "collection force-disabled by environment (" + envcfg.EnvForceDisable + ")"
	}
	cfg.SafetySettings.MaxAuthAttempts = env.MaxAuthAttempts
	cfg.SafetySettings.RestartProtection = env.RestartProtection

	if err := s.saveLocked(cfg); err != nil {
		log.Printf("initial collection config save failed: %v", err)
	}
	return cfg
}

// UpdateSourceConfig merges a partial update into one source entry, creating
// it with defaults if absent, and persists the document.
func (s *Store) UpdateSourceConfig(source string, upd SourceUpdate) (SourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.loadLocked()
	sc := cfg.Sources[source]
	if upd.Enabled != nil {
		sc.Enabled = *upd.Enabled
	}
	if upd.LastCollection != nil {
		sc.LastCollection = upd.LastCollection
	}
	if upd.EnabledAt != nil {
		sc.EnabledAt = upd.EnabledAt
	}
	cfg.Sources[source] = sc
	return sc, s.saveLocked(cfg)
}

// IsSourceEnabled reports the per-source switch; unknown sources are disabled.
func (s *Store) IsSourceEnabled(source string) bool {
	cfg := s.Load()
	return cfg.Sources[source].Enabled
}

// SafetySettings returns the current safety settings.
func (s *Store) SafetySettings() SafetySettings {
	return s.Load().SafetySettings
}

// UpdateSafetySettings merges a partial update into the safety settings and
// persists the document.
func (s *Store) UpdateSafetySettings(upd SafetyUpdate) (SafetySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.loadLocked()
	if upd.MaxAuthAttempts != nil && *upd.MaxAuthAttempts > 0 {
		cfg.SafetySettings.MaxAuthAttempts = *upd.MaxAuthAttempts
	}
	if upd.RestartProtection != nil {
		cfg.SafetySettings.RestartProtection = *upd.RestartProtection
	}
	if upd.AuthTimeoutMinutes != nil && *upd.AuthTimeoutMinutes > 0 {
		cfg.SafetySettings.AuthTimeoutMinutes = *upd.AuthTimeoutMinutes
	}
	return cfg.SafetySettings, s.saveLocked(cfg)
}
