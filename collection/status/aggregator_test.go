package status

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blacklist-hub/blacklist/collection/authlog"
	"github.com/blacklist-hub/blacklist/collection/configstore"
	"github.com/blacklist-hub/blacklist/collection/envcfg"
	"github.com/blacklist-hub/blacklist/collection/protection"
	"github.com/blacklist-hub/blacklist/database/dbcore"
	"github.com/blacklist-hub/blacklist/database/models"
)

type testStack struct {
	store   *configstore.Store
	guard   *protection.Guard
	tracker *authlog.Tracker
	db      *gorm.DB
	agg     *Aggregator
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	dir := t.TempDir()
	db, err := dbcore.Open("sqlite", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	store := configstore.New(filepath.Join(dir, "collection_config.json"), db)
	guard := protection.New(dir, store)
	tracker := authlog.New(db, store)
	return &testStack{
		store:   store,
		guard:   guard,
		tracker: tracker,
		db:      db,
		agg:     New(store, guard, tracker, db),
	}
}

func (s *testStack) enableAll(t *testing.T) {
	t.Helper()
	cfg := s.store.Load()
	cfg.Enabled = true
	for name, sc := range cfg.Sources {
		sc.Enabled = true
		cfg.Sources[name] = sc
	}
	require.NoError(t, s.store.Save(cfg))
}

func seedFailures(t *testing.T, db *gorm.DB, source string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		attempt := models.AuthAttempt{
			Source:    source,
			Success:   false,
			ClientIP:  "127.0.0.1",
			CreatedAt: models.FromTime(time.Now().Add(-time.Minute)),
		}
		require.NoError(t, db.Create(&attempt).Error)
	}
}

func TestGetStatusShape(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "false")
	stack := newTestStack(t)

	snapshot := stack.agg.GetStatus()
	assert.False(t, snapshot.Enabled)
	assert.True(t, snapshot.SafeToEnable)
	assert.Empty(t, snapshot.Error)
	assert.Contains(t, snapshot.Sources, "regtech")
	assert.Contains(t, snapshot.Sources, "secudium")
	assert.Equal(t, 24, snapshot.Authentication.PeriodHours)
	assert.Equal(t, 2, snapshot.ConfigSummary.SourcesConfigured)
	assert.False(t, snapshot.Environment.ForceDisableCollection)
	assert.False(t, snapshot.LastUpdated.IsZero())
}

func TestGetStatusReportsBlockedSource(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "false")
	stack := newTestStack(t)
	seedFailures(t, stack.db, "regtech", 10)

	snapshot := stack.agg.GetStatus()
	assert.True(t, snapshot.Sources["regtech"].Blocked)
	assert.NotEqual(t, "OK", snapshot.Sources["regtech"].BlockReason)
	assert.False(t, snapshot.Sources["secudium"].Blocked)
}

func TestIsCollectionEnabledGates(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "false")

	t.Run("disabled config wins", func(t *testing.T) {
		stack := newTestStack(t)
		assert.False(t, stack.agg.IsCollectionEnabled(""))
		assert.False(t, stack.agg.IsCollectionEnabled("regtech"))
	})

	t.Run("enabled and clear", func(t *testing.T) {
		stack := newTestStack(t)
		stack.enableAll(t)
		assert.True(t, stack.agg.IsCollectionEnabled(""))
		assert.True(t, stack.agg.IsCollectionEnabled("regtech"))
	})

	t.Run("unsafe protection wins over enabled config", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "true")
		stack := newTestStack(t)
		stack.enableAll(t)
		assert.False(t, stack.agg.IsCollectionEnabled(""))
	})

	t.Run("blocked source is unusable, others unaffected", func(t *testing.T) {
		stack := newTestStack(t)
		stack.enableAll(t)
		seedFailures(t, stack.db, "regtech", 10)
		assert.False(t, stack.agg.IsCollectionEnabled("regtech"))
		assert.True(t, stack.agg.IsCollectionEnabled("secudium"))
	})

	t.Run("unknown source is disabled", func(t *testing.T) {
		stack := newTestStack(t)
		stack.enableAll(t)
		assert.False(t, stack.agg.IsCollectionEnabled("nosuch"))
	})
}

func TestGetCollectionSummary(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "false")
	stack := newTestStack(t)
	stack.enableAll(t)
	seedFailures(t, stack.db, "regtech", 10)

	summary := stack.agg.GetCollectionSummary()
	assert.True(t, summary.Enabled)
	assert.True(t, summary.Safe)
	assert.False(t, summary.Sources["regtech"])
	assert.True(t, summary.Sources["secudium"])
	assert.False(t, summary.LastCheck.IsZero())
}

func TestGetDetailedStatus(t *testing.T) {
	t.Setenv(envcfg.EnvForceDisable, "false")
	stack := newTestStack(t)
	stack.enableAll(t)
	stack.tracker.Record("regtech", true, "10.0.0.1", "")
	_, err := stack.guard.CreateBypass("diagnostics", 30)
	require.NoError(t, err)

	detailed := stack.agg.GetDetailedStatus()
	require.NotNil(t, detailed.ProtectionBypass)
	assert.Equal(t, "diagnostics", detailed.ProtectionBypass.Reason)
	require.NotEmpty(t, detailed.RecentAuthAttempts)
	assert.Equal(t, "regtech", detailed.RecentAuthAttempts[0].Source)
	assert.NotEmpty(t, detailed.ConfigHistory, "at least the current config state is reported")
}

func TestValidateCollectionRequirements(t *testing.T) {
	t.Run("missing credentials are issues", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "false")
		t.Setenv(envcfg.EnvRegtechUsername, "")
		t.Setenv(envcfg.EnvRegtechPassword, "")
		t.Setenv(envcfg.EnvSecudiumUsername, "")
		t.Setenv(envcfg.EnvSecudiumPassword, "")
		stack := newTestStack(t)

		v := stack.agg.ValidateCollectionRequirements()
		assert.False(t, v.Valid)
		assert.Len(t, v.Issues, 2)
		assert.False(t, v.Requirements["regtech_credentials"])
	})

	t.Run("force disable is a warning, protection block an issue", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "true")
		t.Setenv(envcfg.EnvRegtechUsername, "user")
		t.Setenv(envcfg.EnvRegtechPassword, "pass")
		t.Setenv(envcfg.EnvSecudiumUsername, "user")
		t.Setenv(envcfg.EnvSecudiumPassword, "pass")
		stack := newTestStack(t)

		v := stack.agg.ValidateCollectionRequirements()
		assert.False(t, v.Valid)
		assert.NotEmpty(t, v.Warnings)
		assert.False(t, v.Requirements["protection_clear"])
	})

	t.Run("all requirements met", func(t *testing.T) {
		t.Setenv(envcfg.EnvForceDisable, "false")
		t.Setenv(envcfg.EnvRegtechUsername, "user")
		t.Setenv(envcfg.EnvRegtechPassword, "pass")
		t.Setenv(envcfg.EnvSecudiumUsername, "user")
		t.Setenv(envcfg.EnvSecudiumPassword, "pass")
		stack := newTestStack(t)

		v := stack.agg.ValidateCollectionRequirements()
		assert.True(t, v.Valid)
		assert.Empty(t, v.Issues)
		assert.True(t, v.Requirements["protection_clear"])
	})
}
