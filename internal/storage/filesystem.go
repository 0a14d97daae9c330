package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"intake/internal/models"
)

// FilesystemStore keeps objects as files under a root directory (cfg.Storage.RootDir).
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if strings.TrimSpace(root) == "" {
		root = "./files"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	return &FilesystemStore{root: abs}, nil
}

func (s *FilesystemStore) Root() string { return s.root }

// resolve maps a key onto the filesystem and refuses anything escaping root.
func (s *FilesystemStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	p := filepath.Join(s.root, filepath.FromSlash(clean))
	if !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

func (s *FilesystemStore) ListPrefixes(ctx context.Context, root string) ([]string, error) {
	dir, err := s.resolve(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list prefixes: %w", err)
	}
	base := strings.TrimSuffix(root, "/") + "/"
	var out []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			out = append(out, base+e.Name()+"/")
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FilesystemStore) ListObjects(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	dir, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}
	var out []models.ObjectInfo
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if errors.Is(werr, fs.ErrNotExist) {
				return nil
			}
			return werr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		out = append(out, models.ObjectInfo{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FilesystemStore) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) > MaxDeleteBatch {
		return ErrBatchTooLarge
	}
	dirs := map[string]struct{}{}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := s.resolve(k)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", k, err)
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	// buckets have no directories; drop the empty ones so a cleared prefix disappears
	for d := range dirs {
		s.pruneEmpty(d)
	}
	return nil
}

func (s *FilesystemStore) pruneEmpty(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (s *FilesystemStore) Put(ctx context.Context, key string, r io.Reader, maxBytes int64) (models.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.ObjectInfo{}, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return models.ObjectInfo{}, err
	}
	if strings.HasSuffix(key, "/") {
		return models.ObjectInfo{}, ErrInvalidKey
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return models.ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return models.ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		s.pruneEmpty(filepath.Dir(p))
		return models.ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return models.ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return models.ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	return models.ObjectInfo{Key: strings.TrimPrefix(path.Clean("/"+key), "/"), Size: n, LastModified: info.ModTime()}, nil
}
