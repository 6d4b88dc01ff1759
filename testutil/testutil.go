// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/lukewaehner/KijayKolder-LinksHub/db"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// VerifyNoLeaks should be deferred at the start of tests that spawn goroutines.
func VerifyNoLeaks(t *testing.T, opts ...goleak.Option) {
	t.Helper()
	goleak.VerifyNone(t, opts...)
}

// NewTestDB returns a migrated catalog database backed by a file in t.TempDir.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	gdb, err := db.OpenDialector(sqlite.Open(db.SQLiteDSN(path)), gormlogger.Silent)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

// IntPtr and friends keep table-driven fixtures short.
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }

func BoolPtr(v bool) *bool { return &v }

func Int64Ptr(v int64) *int64 { return &v }
