package persist

import "fmt"

// NewStore creates a storage backend from configuration.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeFileSystem:
		databasePath, ok := config.Config["database_path"].(string)
		if !ok || databasePath == "" {
			return nil, fmt.Errorf("filesystem storage requires 'database_path' in config")
		}
		return NewFileSystemStore(databasePath)

	case StoreTypeS3:
		return NewS3StoreFromConfig(config)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
