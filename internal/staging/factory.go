package staging

import (
	"fmt"

	"vidup/internal/config"
	"vidup/internal/vidup"
)

// NewStagingAreaFromConfig creates a StagingArea implementation based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig, fsmgr vidup.FilesystemManager) (vidup.StagingArea, error) {
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("staging max_size must not be negative")
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(fsmgr, cfg.MaxSize), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(fsmgr, cfg.StagingDir, cfg.MaxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
