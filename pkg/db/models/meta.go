package models

// Meta is the single-row key/value table holding store-level markers such as
// the schema version and the last full-sync timestamp.
type Meta struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

func (Meta) TableName() string { return "meta" }

const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyLastSyncAt    = "last_sync_at"
)
