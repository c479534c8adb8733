package store

import (
	"context"
	"fmt"

	"github.com/omniful/go_commons/db/sql/postgres"
	"gorm.io/gorm"
)

// WithTx runs fn inside a transaction on the master connection, committing on
// a nil return and rolling back otherwise, with a deferred recover that
// rolls back and re-panics on an unhandled panic inside fn. Every
// multi-statement write in C4/C5 goes through this so the statements land
// in a single transaction; C6's retry-entry updates use their own helper in
// internal/retry.
func WithTx(ctx context.Context, dbCluster *postgres.DbCluster, fn func(tx *gorm.DB) error) error {
	if dbCluster == nil {
		// Unit tests wire repositories backed by in-memory fakes (see
		// internal/store/storetest) that ignore the *gorm.DB argument
		// entirely, so there's nothing to begin a real transaction on.
		return fn(nil)
	}
	db := dbCluster.GetMasterDB(ctx)
	tx := db.Begin().WithContext(ctx)
	if tx.Error != nil {
		return fmt.Errorf("store: begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
