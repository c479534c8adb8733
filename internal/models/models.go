// Package models holds the explicit, hand-mapped row structs of the
// inventory reconciliation core (C2's schema). The source this was
// generalized from relied on a reflective ORM with relationship objects and
// cascades; here relationships are plain foreign keys with no cycles and no
// object-graph loading, per the "transparent object <-> row mapping"
// redesign note — callers that need a related row fetch it explicitly
// through the owning repository.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SkuMaster is the master record for a single sellable SKU. Primary key
// sku_id is itself normalized (lowercase, trimmed) by the caller before it
// ever reaches this layer.
type SkuMaster struct {
	SkuID         string      `gorm:"column:sku_id;primaryKey;size:50" json:"sku_id"`
	OriginalSku   *string     `gorm:"column:original_sku;size:50" json:"original_sku,omitempty"`
	SkuName       string      `gorm:"column:sku_name;size:200;not null" json:"sku_name"`
	AllowOversell bool        `gorm:"column:allow_oversell;not null;default:false" json:"allow_oversell"`
	Environment   Environment `gorm:"column:environment;size:10;not null;default:prod" json:"environment"`
	Status        SkuStatus   `gorm:"column:status;size:10;not null;default:active" json:"status"`
	ExtraData     JSONMap     `gorm:"column:extra_data;type:jsonb;not null;default:'{}'" json:"extra_data"`
	Aliases       JSONMap     `gorm:"column:aliases;type:jsonb;not null;default:'{}'" json:"aliases"`
	CreatedAt     time.Time   `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"column:updated_at;not null;autoCreateTime;autoUpdateTime" json:"updated_at"`
}

func (SkuMaster) TableName() string { return "sku_master" }

// Store is an administratively created seller store on a platform. Never
// auto-created by the core.
type Store struct {
	StoreID       string      `gorm:"column:store_id;primaryKey;size:50" json:"store_id"`
	StoreName     string      `gorm:"column:store_name;size:100;not null" json:"store_name"`
	PlatformType  string      `gorm:"column:platform_type;size:20;not null" json:"platform_type"`
	APIConfig     JSONMap     `gorm:"column:api_config;type:jsonb;not null;default:'{}'" json:"api_config"`
	Status        StoreStatus `gorm:"column:status;size:10;not null;default:active" json:"status"`
	LastSkuSyncAt *time.Time  `gorm:"column:last_sku_sync_at" json:"last_sku_sync_at,omitempty"`
	CreatedAt     time.Time   `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (Store) TableName() string { return "stores" }

// StoreSku is the pure membership set linking a SKU to a store it is sold
// through.
type StoreSku struct {
	StoreID      string    `gorm:"column:store_id;primaryKey;size:50" json:"store_id"`
	SkuID        string    `gorm:"column:sku_id;primaryKey;size:50" json:"sku_id"`
	RegisteredAt time.Time `gorm:"column:registered_at;not null;autoCreateTime" json:"registered_at"`
}

func (StoreSku) TableName() string { return "store_sku" }

// InventoryEvent is a single append-only record in the event log. SkuID is
// nullable: system-level errors with no real SKU context (see
// InventoryService.LogAPIError) are logged with a NULL SKU reference rather
// than a sentinel string, preserving the FK-integrity invariant.
type InventoryEvent struct {
	EventID        uuid.UUID `gorm:"column:event_id;primaryKey;type:uuid" json:"event_id"`
	EventType      EventType `gorm:"column:event_type;size:20;not null" json:"event_type"`
	SkuID          *string   `gorm:"column:sku_id;size:50;index:idx_events_sku_id" json:"sku_id,omitempty"`
	Quantity       int       `gorm:"column:quantity;not null" json:"quantity"`
	StoreID        *string   `gorm:"column:store_id;size:50" json:"store_id,omitempty"`
	PlatformStatus *string   `gorm:"column:platform_status;size:10" json:"platform_status,omitempty"`
	OrderID        *string   `gorm:"column:order_id;size:100" json:"order_id,omitempty"`
	Operator       string    `gorm:"column:operator;size:100;not null" json:"operator"`
	Reason         *string   `gorm:"column:reason" json:"reason,omitempty"`
	Source         Source    `gorm:"column:source;size:10;not null" json:"source"`
	Token          *string   `gorm:"column:token;size:64;uniqueIndex:idx_events_token" json:"token,omitempty"`
	Metadata       JSONMap   `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;autoCreateTime;index:idx_events_created_at" json:"created_at"`
}

func (InventoryEvent) TableName() string { return "inventory_events" }

// InventorySnapshot is the materialized accumulator: exactly one row per SKU
// that has ever received a stock-altering event.
type InventorySnapshot struct {
	SkuID             string     `gorm:"column:sku_id;primaryKey;size:50" json:"sku_id"`
	InternalAvailable int        `gorm:"column:internal_available;not null" json:"internal_available"`
	LastEventID       *uuid.UUID `gorm:"column:last_event_id;type:uuid" json:"last_event_id,omitempty"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null;autoCreateTime;autoUpdateTime" json:"updated_at"`
}

func (InventorySnapshot) TableName() string { return "inventory_snapshots" }

// RetryEntry is a durable record of a platform-side confirm call awaiting
// re-attempt. At most one pending entry exists per (order_number, store_id);
// failed entries are historical and are never revived or reused.
type RetryEntry struct {
	RetryID       uuid.UUID   `gorm:"column:retry_id;primaryKey;type:uuid" json:"retry_id"`
	OrderNumber   string      `gorm:"column:order_number;size:100;not null" json:"order_number"`
	StoreID       string      `gorm:"column:store_id;size:50;not null" json:"store_id"`
	RetryCount    int         `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries    int         `gorm:"column:max_retries;not null;default:3" json:"max_retries"`
	LastError     *string     `gorm:"column:last_error" json:"last_error,omitempty"`
	LastAttemptAt *time.Time  `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	NextAttemptAt time.Time   `gorm:"column:next_attempt_at;not null;index:idx_retry_next_attempt" json:"next_attempt_at"`
	Status        RetryStatus `gorm:"column:status;size:20;not null;default:pending;index:idx_retry_status" json:"status"`
	Metadata      JSONMap     `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt     time.Time   `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (RetryEntry) TableName() string { return "order_confirm_retry" }
