package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/testutils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func fileConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "rentid.db")
	cfg := testutils.GetTestConfig()
	cfg.Log.Level = "error"
	cfg.Database.DSN = dsn
	cfg.Database.AutoMigrate = false
	return cfg, dsn
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(func() (*config.Config, error) {
		clone := *cfg
		return &clone, nil
	})
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	cfg, dsn := fileConfig(t)

	out, err := execute(t, cfg, "migrate")
	require.NoError(t, err)

	var result map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result["models"])

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&users.User{}))
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
}

func TestCleanupCommand(t *testing.T) {
	cfg, _ := fileConfig(t)
	_, err := execute(t, cfg, "migrate")
	require.NoError(t, err)

	out, err := execute(t, cfg, "cleanup")
	require.NoError(t, err)
	assert.JSONEq(t, `{"verification_records":0,"revoked_tokens":0}`, out)
}

func TestPurgePendingCommand(t *testing.T) {
	cfg, dsn := fileConfig(t)
	_, err := execute(t, cfg, "migrate")
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	stale := &users.User{
		Name:       "Stale Pending",
		Email:      "stale@example.com",
		Phone:      "+15550000001",
		DocumentID: "DOC-STALE",
		Password:   "hash",
	}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Model(stale).UpdateColumn("created_at", time.Now().Add(-72*time.Hour)).Error)
	sqlDB, _ := db.DB()
	require.NoError(t, sqlDB.Close())

	out, err := execute(t, cfg, "purge-pending", "--older-than", "96h")
	require.NoError(t, err)
	var report struct {
		Users int64 `json:"users"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Zero(t, report.Users)

	out, err = execute(t, cfg, "purge-pending", "--older-than", "48h")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.Users)
}

func TestCommandsPropagateConfigErrors(t *testing.T) {
	cmd := newRootCommand(func() (*config.Config, error) {
		return nil, errors.New("missing JWT secret")
	})
	for _, name := range []string{"serve", "migrate", "cleanup", "purge-pending"} {
		cmd.SetArgs([]string{name})
		err := cmd.Execute()
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "missing JWT secret")
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	cmd := newRootCommand(loadConfig)
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "cleanup", "purge-pending"})
}
