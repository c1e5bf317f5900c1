// Package authlog records authentication attempts against external threat
// feeds and decides when a source has failed too often to keep trying.
package authlog

import (
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/database/models"
)

// attemptWindow is the trailing window for block decisions.
const attemptWindow = time.Hour

// defaultClientIP is recorded when the caller does not know the client.
const defaultClientIP = "127.0.0.1"

// Tracker is the append-only attempt log plus its windowed aggregations.
// Aggregations are always computed live over the table, never cached.
type Tracker struct {
	db     *gorm.DB
	config *configstore.Store
}

func New(db *gorm.DB, config *configstore.Store) *Tracker {
	return &Tracker{db: db, config: config}
}

// Record appends one attempt. It never fails the caller; storage errors are
// logged and swallowed.
func (t *Tracker) Record(source string, success bool, clientIP, details string) {
	if clientIP == "" {
		clientIP = defaultClientIP
	}
	attempt := models.AuthAttempt{
		Source:    source,
		Success:   success,
		ClientIP:  clientIP,
		Details:   details,
		CreatedAt: models.FromTime(time.Now()),
	}
	if err := t.db.Create(&attempt).Error; err != nil {
		log.Printf("auth attempt record failed for %s: %v", source, err)
	}
}

func (t *Tracker) failedInWindow(source string) (int64, error) {
	cutoff := time.Now().Add(-attemptWindow)
	var failed int64
	err := t.db.Model(&models.AuthAttempt{}).
		Where("source = ? AND success = ? AND created_at > ?", source, false, cutoff).
		Count(&failed).Error
	return failed, err
}

// CheckAttemptLimit reports whether the source may attempt another
// authentication: failed attempts in the last hour must stay under the
// configured limit. Storage errors fail closed.
func (t *Tracker) CheckAttemptLimit(source string) bool {
	failed, err := t.failedInWindow(source)
	if err != nil {
		log.Printf("auth attempt count failed for %s, blocking: %v", source, err)
		return false
	}
	return failed < int64(t.config.SafetySettings().MaxAuthAttempts)
}

// IsSourceBlocked returns the block verdict and a human-readable reason.
func (t *Tracker) IsSourceBlocked(source string) (bool, string) {
	failed, err := t.failedInWindow(source)
	if err != nil {
		return true, "인증 시도 기록 조회 실패, 안전을 위해 차단됨"
	}
	maxAttempts := t.config.SafetySettings().MaxAuthAttempts
	if failed < int64(maxAttempts) {
		return false, "OK"
	}
	return true, fmt.Sprintf("최근 1시간 내 인증 실패 %d회 (제한 %d회)", failed, maxAttempts)
}

// SourceStats is the per-source attempt summary over a trailing window.
type SourceStats struct {
	Source             string  `json:"source"`
	PeriodHours        int     `json:"period_hours"`
	TotalAttempts      int64   `json:"total_attempts"`
	SuccessfulAttempts int64   `json:"successful_attempts"`
	FailedAttempts     int64   `json:"failed_attempts"`
	SuccessRate        float64 `json:"success_rate"`
	WithinLimit        bool    `json:"within_limit"`
}

// OverallStats groups SourceStats per source with a short summary.
type OverallStats struct {
	PeriodHours int                    `json:"period_hours"`
	Sources     map[string]SourceStats `json:"sources"`
	Summary     StatsSummary           `json:"summary"`
}

type StatsSummary struct {
	TotalSources     int `json:"total_sources"`
	SourcesOverLimit int `json:"sources_over_limit"`
}

// Statistics computes the attempt summary for one source over the trailing
// hours window. Storage errors yield an empty, within-limit summary.
func (t *Tracker) Statistics(source string, hours int) SourceStats {
	if hours <= 0 {
		hours = 24
	}
	maxAttempts := t.config.SafetySettings().MaxAuthAttempts
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	stats := SourceStats{Source: source, PeriodHours: hours}
	base := t.db.Model(&models.AuthAttempt{}).
		Where("source = ? AND created_at > ?", source, cutoff)
	if err := base.Count(&stats.TotalAttempts).Error; err != nil {
		log.Printf("auth statistics query failed for %s: %v", source, err)
		stats.WithinLimit = true
		return stats
	}
	if err := t.db.Model(&models.AuthAttempt{}).
		Where("source = ? AND success = ? AND created_at > ?", source, true, cutoff).
		Count(&stats.SuccessfulAttempts).Error; err != nil {
		log.Printf("auth statistics query failed for %s: %v", source, err)
	}
	stats.FailedAttempts = stats.TotalAttempts - stats.SuccessfulAttempts

	denom := stats.TotalAttempts
	if denom == 0 {
		denom = 1
	}
	stats.SuccessRate = math.Round(float64(stats.SuccessfulAttempts)/float64(denom)*1000) / 10
	stats.WithinLimit = stats.FailedAttempts < int64(maxAttempts)
	return stats
}

// OverallStatistics computes per-source summaries for every source seen in the
// window plus all configured defaults.
func (t *Tracker) OverallStatistics(hours int) OverallStats {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	seen := map[string]struct{}{}
	for _, name := range configstore.DefaultSources {
		seen[name] = struct{}{}
	}
	var names []string
	if err := t.db.Model(&models.AuthAttempt{}).
		Where("created_at > ?", cutoff).
		Distinct("source").Pluck("source", &names).Error; err != nil {
		log.Printf("auth statistics source scan failed: %v", err)
	}
	for _, name := range names {
		seen[name] = struct{}{}
	}

	result := OverallStats{
		PeriodHours: hours,
		Sources:     make(map[string]SourceStats, len(seen)),
	}
	for name := range seen {
		stats := t.Statistics(name, hours)
		result.Sources[name] = stats
		result.Summary.TotalSources++
		if !stats.WithinLimit {
			result.Summary.SourcesOverLimit++
		}
	}
	return result
}

// Reset deletes failed attempts for one source, or for all sources when
// source is empty, and returns how many rows were removed. This is the
// explicit clear-the-slate operation run when collection is re-enabled.
func (t *Tracker) Reset(source string) (int64, error) {
	query := t.db.Where("success = ?", false)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	res := query.Delete(&models.AuthAttempt{})
	if res.Error != nil {
		log.Printf("auth attempt reset failed: %v", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RecentAttempts returns the newest attempts first, optionally filtered by
// source.
func (t *Tracker) RecentAttempts(source string, limit int) []models.AuthAttempt {
	if limit <= 0 {
		limit = 50
	}
	query := t.db.Order("id desc").Limit(limit)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	var attempts []models.AuthAttempt
	if err := query.Find(&attempts).Error; err != nil {
		log.Printf("recent auth attempts query failed: %v", err)
		return nil
	}
	return attempts
}

// CleanupOld deletes attempts older than the given number of days and returns
// how many rows were removed. Retention is explicit; nothing evicts in the
// background.
func (t *Tracker) CleanupOld(days int) (int64, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	res := t.db.Where("created_at < ?", cutoff).Delete(&models.AuthAttempt{})
	if res.Error != nil {
		log.Printf("auth attempt cleanup failed: %v", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
