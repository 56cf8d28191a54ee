package objectstore

import (
	"context"
	"io"
	"strings"
)

// Prefixed wraps a Store and pins every operation to top_level_folder:
// the prefix is prepended on write, and matched-and-stripped on list
// and read, so callers always see keys relative to the folder. This is
// the same "directory-scoped" shape as the teacher's local file sink,
// which resolves every log filename under config.Directory.
type Prefixed struct {
	inner  Store
	folder string
}

// NewPrefixed pins store to folder. An empty folder is a no-op wrapper.
func NewPrefixed(store Store, folder string) *Prefixed {
	folder = strings.Trim(folder, "/")

	return &Prefixed{inner: store, folder: folder}
}

func (p *Prefixed) full(key string) string {
	if p.folder == "" {
		return key
	}

	return p.folder + "/" + strings.TrimPrefix(key, "/")
}

func (p *Prefixed) relative(key string) string {
	if p.folder == "" {
		return key
	}

	return strings.TrimPrefix(strings.TrimPrefix(key, p.folder), "/")
}

func (p *Prefixed) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	return p.inner.OpenRead(ctx, p.full(key))
}

func (p *Prefixed) Exists(ctx context.Context, key string) (bool, error) {
	return p.inner.Exists(ctx, p.full(key))
}

func (p *Prefixed) GetMetadata(ctx context.Context, key string) (*StorageObject, error) {
	obj, err := p.inner.GetMetadata(ctx, p.full(key))
	if err != nil {
		return nil, err
	}

	obj.Key = p.relative(obj.Key)

	return obj, nil
}

func (p *Prefixed) List(ctx context.Context, prefix string) ([]StorageObject, error) {
	objects, err := p.inner.List(ctx, p.full(prefix))
	if err != nil {
		return nil, err
	}

	for i := range objects {
		objects[i].Key = p.relative(objects[i].Key)
	}

	return objects, nil
}

func (p *Prefixed) OpenWrite(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	return p.inner.OpenWrite(ctx, p.full(key), contentType)
}

func (p *Prefixed) SetMetadata(ctx context.Context, key string, metadata map[string]string) error {
	return p.inner.SetMetadata(ctx, p.full(key), metadata)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.full(key))
}
