// Package protection decides whether enabling collection is currently safe.
//
// Three gates combine into one verdict: an explicit expiring bypass, the
// rapid-restart detector, and the environment force-disable flag. The bypass
// short-circuits the other two; an expired bypass is treated as absent. When
// the guard cannot read its own state it reports not safe.
package protection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/collection/envcfg"
)

const (
	// A process starting this many times inside restartWindow is treated as
	// a crash loop.
	rapidRestartThreshold = 3
	restartWindow         = 5 * time.Minute

	// Entries kept in the restart history file.
	restartHistoryCap = 10

	defaultBypassMinutes = 60

	restartHistoryFile = "restart_history.json"
	bypassFile         = "protection_bypass.json"
)

// Bypass is the operator override record. At most one exists at a time.
type Bypass struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status is the read-only view of the guard for diagnostics.
type Status struct {
	SafeToEnable         bool    `json:"safe_to_enable"`
	SafetyReason         string  `json:"safety_reason"`
	RapidRestartDetected bool    `json:"rapid_restart_detected"`
	BypassActive         bool    `json:"bypass_active"`
	BypassDetails        *Bypass `json:"bypass_details,omitempty"`
}

// ResetResult reports what an administrative reset actually cleared.
type ResetResult struct {
	RapidRestartCleared bool `json:"rapid_restart_cleared"`
	BypassCleared       bool `json:"bypass_cleared"`
}

// Guard combines the restart detector, bypass record and environment gate.
type Guard struct {
	mu      sync.Mutex
	dataDir string
	config  *configstore.Store

	// Sticky for the process lifetime once tripped.
	rapidRestart bool
	// Set when restart state could not be read or written; forces not-safe.
	stateSuspect bool

	nowFn func() time.Time
}

func New(dataDir string, config *configstore.Store) *Guard {
	return &Guard{dataDir: dataDir, config: config, nowFn: time.Now}
}

func (g *Guard) historyPath() string { return filepath.Join(g.dataDir, restartHistoryFile) }
func (g *Guard) bypassPath() string  { return filepath.Join(g.dataDir, bypassFile) }

// DetectRapidRestart records this process start and reports whether the
// trailing window now looks like a crash loop. Call once at startup; the
// verdict is sticky until ResetProtectionState.
func (g *Guard) DetectRapidRestart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	var history []time.Time
	data, err := os.ReadFile(g.historyPath())
	if err == nil {
		if jsonErr := json.Unmarshal(data, &history); jsonErr != nil {
			log.Printf("restart history parse failed: %v", jsonErr)
			g.stateSuspect = true
			history = nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("restart history read failed: %v", err)
		g.stateSuspect = true
	}

	history = append(history, now)
	if len(history) > restartHistoryCap {
		history = history[len(history)-restartHistoryCap:]
	}

	recent := 0
	for _, started := range history {
		if now.Sub(started) < restartWindow {
			recent++
		}
	}
	if recent >= rapidRestartThreshold {
		g.rapidRestart = true
	}

	if err := g.writeJSON(g.historyPath(), history); err != nil {
		log.Printf("restart history write failed: %v", err)
		g.stateSuspect = true
	}
	return g.rapidRestart
}

// CreateBypass persists a new override valid for durationMinutes (default 60),
// replacing any previous one.
func (g *Guard) CreateBypass(reason string, durationMinutes int) (*Bypass, error) {
	if durationMinutes <= 0 {
		durationMinutes = defaultBypassMinutes
	}
	now := g.nowFn()
	bypass := &Bypass{
		ID:        uuid.NewString(),
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(durationMinutes) * time.Minute),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.writeJSON(g.bypassPath(), bypass); err != nil {
		return nil, fmt.Errorf("persist bypass: %w", err)
	}
	return bypass, nil
}

// CheckBypass returns the active bypass, or nil when none exists, it expired,
// or it cannot be read. Expired records stay on disk; expiry is lazy.
func (g *Guard) CheckBypass() *Bypass {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkBypassLocked()
}

func (g *Guard) checkBypassLocked() *Bypass {
	data, err := os.ReadFile(g.bypassPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("bypass read failed, treating as absent: %v", err)
		}
		return nil
	}
	var bypass Bypass
	if err := json.Unmarshal(data, &bypass); err != nil {
		log.Printf("bypass parse failed, treating as absent: %v", err)
		return nil
	}
	if !g.nowFn().Before(bypass.ExpiresAt) {
		return nil
	}
	return &bypass
}

// IsCollectionSafeToEnable returns the combined verdict. Gate order: an
// unexpired bypass wins outright, then rapid-restart protection, then the
// environment force-disable flag.
func (g *Guard) IsCollectionSafeToEnable() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if bypass := g.checkBypassLocked(); bypass != nil {
		return true, "보호 우회 활성화: " + bypass.Reason
	}
	if g.stateSuspect {
		return false, "보호 상태를 확인할 수 없어 수집을 차단합니다"
	}
	if g.rapidRestart && g.config.SafetySettings().RestartProtection {
		return false, "빠른 재시작 감지, 안전을 위해 수집 비활성화"
	}
	if envcfg.Read().ForceDisableCollection {
		return false, "환경 변수에 의해 수집이 강제 비활성화됨"
	}
	return true, "수집 활성화 가능"
}

// ProtectionStatus composes the gate states for display.
func (g *Guard) ProtectionStatus() Status {
	safe, reason := g.IsCollectionSafeToEnable()

	g.mu.Lock()
	defer g.mu.Unlock()
	bypass := g.checkBypassLocked()
	return Status{
		SafeToEnable:         safe,
		SafetyReason:         reason,
		RapidRestartDetected: g.rapidRestart,
		BypassActive:         bypass != nil,
		BypassDetails:        bypass,
	}
}

// ResetProtectionState clears the restart verdict, the restart history and any
// bypass record. Administrative operation, always audited by the caller.
func (g *Guard) ResetProtectionState() ResetResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := ResetResult{}
	if g.rapidRestart || g.stateSuspect {
		result.RapidRestartCleared = true
	}
	g.rapidRestart = false
	g.stateSuspect = false
	if err := os.Remove(g.historyPath()); err == nil {
		result.RapidRestartCleared = true
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("restart history remove failed: %v", err)
	}

	if err := os.Remove(g.bypassPath()); err == nil {
		result.BypassCleared = true
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("bypass remove failed: %v", err)
	}
	return result
}

func (g *Guard) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
