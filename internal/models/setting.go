package models

import "time"

// SettingType tags how a setting value should be interpreted by consumers.
// Values are always string-encoded; the type is advisory metadata.
type SettingType string

const (
	// SettingTypeText is a plain text value.
	SettingTypeText SettingType = "text"
	// SettingTypeImage is a URL to an image asset.
	SettingTypeImage SettingType = "image"
	// SettingTypeNumber is a numeric value encoded as a string.
	SettingTypeNumber SettingType = "number"
	// SettingTypeBoolean is "true" or "false".
	SettingTypeBoolean SettingType = "boolean"
)

// Setting is one configuration row. TenantID 0 is the global default tier
// for the key; a row with TenantID > 0 is a tenant-specific override.
// Every key always has a TenantID 0 row; overrides are optional.
type Setting struct {
	Key         string      `gorm:"primaryKey;size:120" json:"key"`
	TenantID    uint        `gorm:"primaryKey;autoIncrement:false" json:"tenant_id"`
	Value       string      `gorm:"type:text;not null" json:"value"`
	Name        string      `gorm:"size:120" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Type        SettingType `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Setting) TableName() string {
	return "settings"
}

// EffectiveSetting is a resolved setting row annotated with provenance.
// IsCustom is true iff the value comes from a tenant override rather than
// the global default.
type EffectiveSetting struct {
	Setting
	IsCustom bool `json:"is_custom"`
}
