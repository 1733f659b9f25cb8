package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// offsetsFile — формат файла ProcessedFile
type offsetsFile struct {
	SavedAt time.Time        `json:"saved_at"`
	Offsets map[string]int64 `json:"offsets"`
}

// FileStore хранит смещения в JSON-файле; запись атомарная через временный файл
type FileStore struct {
	Path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, now: time.Now}
}

func (f *FileStore) Load() (map[string]int64, error) {
	bs, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]int64), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	var doc offsetsFile
	if err := json.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	if doc.Offsets == nil {
		doc.Offsets = make(map[string]int64)
	}
	return doc.Offsets, nil
}

func (f *FileStore) Save(data map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	bs, err := json.MarshalIndent(offsetsFile{SavedAt: f.now().UTC(), Offsets: data}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode offsets: %w", err)
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := writeSynced(tmp, bs); err != nil {
		return err
	}
	// Удаляем старый файл, чтобы Rename не ошибся (актуально для Windows)
	_ = os.Remove(f.Path)
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// writeSynced пишет файл и сбрасывает его на диск до переименования
func writeSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return file.Close()
}
