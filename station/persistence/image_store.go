package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dfryer1193/evstations/station/domain"
)

var _ domain.ImageStore = (*FileImageStore)(nil)

// imageExt is the extension of blobs on disk. It is not part of the image reference.
const imageExt = ".jpeg"

// FileImageStore is a content-addressed domain.ImageStore backed by a directory.
// Blobs are named by the hex MD5 of their bytes.
type FileImageStore struct {
	dir string
}

// NewFileImageStore creates dir if needed and returns a store rooted there.
func NewFileImageStore(dir string) (*FileImageStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("image directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w: %w", domain.ErrStorageWrite, err)
	}
	return &FileImageStore{dir: dir}, nil
}

// ImageKey returns the content hash used as the storage key for content.
func ImageKey(content []byte) string {
	return domain.ContentKey(content)
}

// Put writes content under its hash. When the blob already exists its
// modification time is refreshed so the sweeper treats it as recently used.
func (s *FileImageStore) Put(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", fmt.Errorf("%w: image content cannot be empty", domain.ErrInvalidArgument)
	}

	key := ImageKey(content)
	localPath := s.path(key)

	if _, err := os.Stat(localPath); err == nil {
		now := time.Now()
		if err := os.Chtimes(localPath, now, now); err != nil {
			return "", fmt.Errorf("failed to touch image %s: %w: %w", key, domain.ErrStorageWrite, err)
		}
		return key, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}

	// write to a temp file and rename so readers never see a partial blob
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w: %w", domain.ErrStorageWrite, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}

	return key, nil
}

func (s *FileImageStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !domain.ValidImageKey(key) {
		return nil, fmt.Errorf("%w: malformed image key %q", domain.ErrInvalidArgument, key)
	}

	content, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("image %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w: %w", key, domain.ErrStorageRead, err)
	}
	return content, nil
}

func (s *FileImageStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !domain.ValidImageKey(key) {
		return false, nil
	}

	_, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat image %s: %w: %w", key, domain.ErrStorageRead, err)
	}
	return true, nil
}

func (s *FileImageStore) Stat(ctx context.Context, key string) (domain.ImageInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageInfo{}, err
	}
	if !domain.ValidImageKey(key) {
		return domain.ImageInfo{}, fmt.Errorf("%w: malformed image key %q", domain.ErrInvalidArgument, key)
	}

	info, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ImageInfo{}, fmt.Errorf("image %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("failed to stat image %s: %w: %w", key, domain.ErrStorageRead, err)
	}
	return domain.ImageInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes the blob. It is not idempotent: a missing blob yields domain.ErrNotFound.
func (s *FileImageStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !domain.ValidImageKey(key) {
		return fmt.Errorf("%w: malformed image key %q", domain.ErrInvalidArgument, key)
	}

	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("image %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to remove image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}
	return nil
}

// List returns every blob in the store. Stray files that are not blobs are skipped.
func (s *FileImageStore) List(ctx context.Context) ([]domain.ImageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w: %w", domain.ErrStorageRead, err)
	}

	images := make([]domain.ImageInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := strings.CutSuffix(entry.Name(), imageExt)
		if !ok || !domain.ValidImageKey(key) {
			continue
		}

		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue // removed since ReadDir
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat image %s: %w: %w", key, domain.ErrStorageRead, err)
		}

		images = append(images, domain.ImageInfo{
			Key:     key,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return images, nil
}

func (s *FileImageStore) path(key string) string {
	return filepath.Join(s.dir, key+imageExt)
}
