package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelMapping binds one external marketplace identifier to exactly one
// internal variant. Unique on (channel, external_sku); a variant may carry
// mappings from many channels. The variant_id is never remapped in place,
// remapping is delete plus recreate so it leaves an audit point.
type ChannelMapping struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Channel     string    `gorm:"column:channel;not null;uniqueIndex:idx_channel_external_sku"`
	ExternalSKU string    `gorm:"column:external_sku;not null;uniqueIndex:idx_channel_external_sku"`
	VariantID   uuid.UUID `gorm:"column:variant_id;type:uuid;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
