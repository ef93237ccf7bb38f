package storage

import (
	"errors"
	"strings"
	"sync"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/internal/storage/sqlite"
)

var (
	sqliteStoreOnce sync.Once
	sqliteStoreInst *sqlite.Store
	sqliteStoreErr  error
	// ErrDBPathNotConfigured indicates config.DBPath is empty.
	ErrDBPathNotConfigured = errors.New("db_path is not configured")
)

// GetSQLiteStore returns a shared sqlite store handle for reuse. The first
// call decides the path; later calls ignore cfg.
func GetSQLiteStore(cfg *config.Config) (*sqlite.Store, error) {
	sqliteStoreOnce.Do(func() {
		if cfg == nil {
			cfg = config.Get()
		}
		dbPath := strings.TrimSpace(cfg.DBPath)
		if dbPath == "" {
			sqliteStoreErr = ErrDBPathNotConfigured
			return
		}
		sqliteStoreInst, sqliteStoreErr = sqlite.Open(dbPath)
	})
	return sqliteStoreInst, sqliteStoreErr
}
