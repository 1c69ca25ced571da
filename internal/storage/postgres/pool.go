package postgres

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// The pool manager is process-global and keyed by DSN: every Store built
// from the same connection string shares one *sql.DB. Pools open on first
// use and are torn down once at shutdown via ClosePools.
var poolManager = struct {
	sync.Mutex
	pools map[string]*sql.DB
}{pools: make(map[string]*sql.DB)}

func openPool(dsn string) (*sql.DB, error) {
	poolManager.Lock()
	defer poolManager.Unlock()

	if db, ok := poolManager.pools[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database %s: %w", sanitizeDSN(dsn), err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("failed to ping %s: %w", sanitizeDSN(dsn), err))
	}

	poolManager.pools[dsn] = db
	return db, nil
}

// ClosePools closes every open connection pool. Call once at shutdown.
func ClosePools() error {
	poolManager.Lock()
	defer poolManager.Unlock()

	var firstErr error
	for dsn, db := range poolManager.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("postgres: closing pool for %s: %w", sanitizeDSN(dsn), err)
		}
		delete(poolManager.pools, dsn)
	}
	return firstErr
}
