package store

import (
	"gorm.io/gorm/clause"
)

// onConflictUpdateSnapshot builds the ON CONFLICT clause used to upsert the
// single snapshot row per SKU: insert if absent, otherwise overwrite
// internal_available/last_event_id/updated_at with the values the caller
// already computed under the row lock taken by GetForUpdate.
func onConflictUpdateSnapshot() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"internal_available", "last_event_id", "updated_at"}),
	}
}
