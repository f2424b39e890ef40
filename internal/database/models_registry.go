package database

import "arbor/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models
// for the global database.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.TenantRequest{},
		&models.Setting{},
	}
}
