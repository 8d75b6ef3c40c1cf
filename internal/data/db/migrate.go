package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates the tables backing models on g.
func Migrate(g *gorm.DB, models ...any) error {
	if g == nil {
		return fmt.Errorf("migrate: nil db")
	}
	if len(models) == 0 {
		return nil
	}
	if err := g.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
