package object

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pkgerrors "doc-platform/pkg/errors"
)

// metaSuffix 元数据边车文件后缀，对象路径本身不允许使用
const metaSuffix = ".meta"

// FileStore 本地文件系统对象存储。对象按相对路径落在 baseDir 下，
// 元数据写入同名 .meta 边车文件。
type FileStore struct {
	baseDir string
}

// NewFileStore 创建文件系统对象存储，baseDir 不存在时自动创建
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("文件对象存储缺少 base_dir")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建对象目录失败: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// resolve 校验对象路径并映射到 baseDir 下的绝对路径
func (s *FileStore) resolve(path string) (string, error) {
	if path == "" {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "对象路径为空")
	}
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "对象路径 %s 越界", path)
	}
	if strings.HasSuffix(path, metaSuffix) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "对象路径 %s 使用保留后缀", path)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(path)), nil
}

// Put 写入对象
func (s *FileStore) Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("创建对象目录失败: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("创建对象文件失败: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return fmt.Errorf("写入对象数据失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("写入对象数据失败: %w", err)
	}

	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		if err := os.WriteFile(full+metaSuffix, raw, 0o644); err != nil {
			return fmt.Errorf("写入对象元数据失败: %w", err)
		}
	}
	return nil
}

// Get 读取对象
func (s *FileStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "对象 %s", path)
		}
		return nil, err
	}
	return f, nil
}

// Delete 删除对象及其元数据边车
func (s *FileStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "对象 %s", path)
		}
		return err
	}
	_ = os.Remove(full + metaSuffix)
	return nil
}

// List 按前缀列出对象
func (s *FileStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var results []*ObjectInfo
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		path := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		meta, _ := s.readMeta(p)
		results = append(results, &ObjectInfo{
			Path:      path,
			Size:      info.Size(),
			Metadata:  meta,
			CreatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// Exists 检查对象是否存在
func (s *FileStore) Exists(ctx context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetMetadata 获取对象元数据；对象存在但无边车时返回空
func (s *FileStore) GetMetadata(ctx context.Context, path string) (map[string]string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "对象 %s", path)
		}
		return nil, err
	}
	return s.readMeta(full)
}

func (s *FileStore) readMeta(full string) (map[string]string, error) {
	raw, err := os.ReadFile(full + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("解析对象元数据失败: %w", err)
	}
	return meta, nil
}

// Close 关闭存储连接
func (s *FileStore) Close() error {
	return nil
}
