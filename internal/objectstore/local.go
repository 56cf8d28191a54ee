package objectstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// LocalStore is a disk-backed Store used in tests and local development
// in place of a live S3 bucket. Keys map to files under root, mirroring
// the teacher's local file sink's filepath.Join(directory, name) layout,
// generalized from "one rotated log file per source" to "one blob per
// key" plus a metadata sidecar file.
type LocalStore struct {
	root string
	mu   sync.RWMutex
}

// NewLocalStore creates (if needed) root and returns a Store over it.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "NewLocalStore", "create root failed", err)
	}

	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStore) metaPath(key string) string {
	return s.path(key) + ".meta"
}

func (s *LocalStore) OpenRead(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "OpenRead", "open failed: "+key, err)
	}

	return f, nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "objectstore", "Exists", "stat failed: "+key, err)
	}

	return true, nil
}

func (s *LocalStore) GetMetadata(_ context.Context, key string) (*StorageObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(s.path(key))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "GetMetadata", "stat failed: "+key, err)
	}

	obj := &StorageObject{
		Key:           key,
		ContentLength: info.Size(),
		LastModified:  info.ModTime().UTC(),
		ETag:          weakETag(info.ModTime(), info.Size()),
		UserMetadata:  readMetaFile(s.metaPath(key)),
	}

	return obj, nil
}

// List returns the objects whose key starts with prefix. Only files
// directly inside the prefix's directory are listed; keys in deeper
// subdirectories are not returned.
func (s *LocalStore) List(_ context.Context, prefix string) ([]StorageObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var objects []StorageObject

	base := s.path(prefix)
	dir := filepath.Dir(base)
	if prefix == "" || prefix[len(prefix)-1] == '/' {
		dir = base
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return objects, nil
		}

		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "List", "read dir failed: "+prefix, err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".meta" {
			continue
		}

		key := filepath.ToSlash(filepath.Join(filepath.Dir(prefix), e.Name()))
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		objects = append(objects, StorageObject{
			Key:           key,
			ContentLength: info.Size(),
			LastModified:  info.ModTime().UTC(),
			ETag:          weakETag(info.ModTime(), info.Size()),
			UserMetadata:  readMetaFile(s.metaPath(key)),
		})
	}

	return objects, nil
}

func (s *LocalStore) OpenWrite(_ context.Context, key, _ string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "OpenWrite", "mkdir failed: "+key, err)
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "OpenWrite", "create failed: "+key, err)
	}

	return f, nil
}

func (s *LocalStore) SetMetadata(_ context.Context, key string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	for k, v := range metadata {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(s.metaPath(key), buf.Bytes(), 0o644); err != nil {
		return apperr.Wrap(apperr.KindStorage, "objectstore", "SetMetadata", "write failed: "+key, err)
	}

	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindStorage, "objectstore", "Delete", "remove failed: "+key, err)
	}

	_ = os.Remove(s.metaPath(key))

	return nil
}

func weakETag(t time.Time, size int64) string {
	return t.UTC().Format("20060102150405") + "-" + strconv.FormatInt(size, 10)
}

func readMetaFile(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	meta := make(map[string]string)

	line := bytes.NewBuffer(nil)
	for _, b := range data {
		if b == '\n' {
			parts := bytes.SplitN(line.Bytes(), []byte("="), 2)
			if len(parts) == 2 {
				meta[string(parts[0])] = string(parts[1])
			}

			line.Reset()

			continue
		}

		line.WriteByte(b)
	}

	return meta
}
