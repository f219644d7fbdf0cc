package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage persists run artifacts on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// BaseDir returns the root of the storage area.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// MkdirAll creates a directory tree under the base dir and returns its path.
func (s *LocalStorage) MkdirAll(rel string) (string, error) {
	path := s.resolve(rel)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", rel, err)
	}
	return path, nil
}

// Save writes the given bytes to the provided relative path under the base dir.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact file: %w", err)
	}
	return filename, nil
}

// SaveJSON marshals v with indentation and stores it at the relative path.
func (s *LocalStorage) SaveJSON(filename string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json artifact: %w", err)
	}
	return s.Save(filename, data)
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	file, err := os.Open(s.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("open artifact file: %w", err)
	}
	return file, nil
}

// Exists reports whether the relative path is present.
func (s *LocalStorage) Exists(filename string) bool {
	_, err := os.Stat(s.resolve(filename))
	return err == nil
}

// CopyFile duplicates src into dst, both relative to the base dir.
func (s *LocalStorage) CopyFile(src, dst string) error {
	in, err := os.Open(s.resolve(src))
	if err != nil {
		return fmt.Errorf("open copy source: %w", err)
	}
	defer in.Close() //nolint:errcheck

	dstPath := s.resolve(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("prepare copy destination: %w", err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create copy destination: %w", err)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	return nil
}

// Glob returns relative paths matching the pattern under the base dir.
func (s *LocalStorage) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(s.resolve(pattern))
	if err != nil {
		return nil, fmt.Errorf("glob artifacts: %w", err)
	}
	rel := make([]string, 0, len(matches))
	for _, m := range matches {
		r, err := filepath.Rel(s.baseDir, m)
		if err != nil {
			continue
		}
		rel = append(rel, r)
	}
	return rel, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	if err := os.Remove(s.resolve(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes files older than the provided TTL and returns deleted names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			if rel, relErr := filepath.Rel(s.baseDir, path); relErr == nil {
				deleted = append(deleted, rel)
			}
		}
		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("cleanup workspace: %w", err)
	}
	return deleted, nil
}

func (s *LocalStorage) resolve(filename string) string {
	return filepath.Join(s.baseDir, filepath.Clean(filename))
}
