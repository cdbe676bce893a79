package database

import (
	"fmt"

	"github.com/lordkekz/KosmikAutoUpdate/internal/config"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// NewIndexFromConfig creates an Index implementation based on the
// database config type.
func NewIndexFromConfig(cfg config.DatabaseConfig) (update.Index, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite index requires path to be set")
		}
		return NewSQLiteIndex(cfg.Path)
	case "memory":
		return NewSQLiteIndex(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
