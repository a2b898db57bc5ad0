package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskURLPrefix 本地文件的访问前缀
const DiskURLPrefix = "/uploads/"

// Disk 本地目录存储
type Disk struct {
	root string
}

// NewDisk 创建本地存储，root 不存在时创建
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{root: root}, nil
}

// Root 上传目录
func (d *Disk) Root() string { return d.root }

func (d *Disk) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", key, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	return DiskURLPrefix + key, nil
}

func (d *Disk) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, DiskURLPrefix)
	if !ok {
		return nil
	}
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// path 将 key 映射到 root 下的路径，拒绝越界
func (d *Disk) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

var _ Store = (*Disk)(nil)
