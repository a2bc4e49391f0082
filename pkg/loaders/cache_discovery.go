package loaders

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModelInfo represents a model file found in the cache
type ModelInfo struct {
	ID       string `json:"id"`       // Model identifier (file stem)
	FilePath string `json:"filePath"` // Path to the model file
	Size     int64  `json:"size"`     // File size in bytes
}

// ListCachedModels scans the cache directory and returns the models it holds, sorted by id
func ListCachedModels(cacheDir string) ([]ModelInfo, error) {
	if _, err := os.Stat(cacheDir); err != nil {
		if os.IsNotExist(err) {
			// No cache yet, return empty list
			return []ModelInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	return listModels(os.DirFS(cacheDir), cacheDir)
}

func listModels(fsys fs.FS, cacheDir string) ([]ModelInfo, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}

	models := []ModelInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".fbx") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		models = append(models, ModelInfo{
			ID:       strings.TrimSuffix(name, ext),
			FilePath: filepath.Join(cacheDir, name),
			Size:     info.Size(),
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}
