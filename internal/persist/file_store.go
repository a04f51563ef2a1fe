package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore saves each blob as a JSON file under a base directory. Writes go
// through a temp file and rename so a crash mid-write never truncates the
// previous blob.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("persist base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Save replaces the blob under key with the serialized value.
func (f *FileStore) Save(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal blob %q: %w", key, err)
	}
	target := f.path(key)
	tmp, err := os.CreateTemp(f.basePath, safeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close blob %q: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace blob %q: %w", key, err)
	}
	return nil
}

// Load reads the blob under key. A missing file is not an error.
func (f *FileStore) Load(key string, into any) (bool, error) {
	raw, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read blob %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return false, fmt.Errorf("decode blob %q: %w", key, err)
	}
	return true, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.basePath, safeKey(key)+".json")
}

func safeKey(key string) string {
	key = filepath.Base(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	if key == "" || key == "." {
		return "blob"
	}
	return key
}
