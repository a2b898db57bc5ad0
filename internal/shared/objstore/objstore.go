// Package objstore 上传文件的对象存储
//
// 配置了 MinIO 时使用 MinIO，否则落盘到本地上传目录并由 API 服务以 /uploads/ 前缀提供。
// 文档中保存的是对象的访问 URL，删除同样以 URL 为参数。
package objstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"path"
	"strings"
)

// Store 对象存储接口
type Store interface {
	// Put 写入对象并返回访问 URL
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Delete 按访问 URL 删除对象，URL 不属于本存储时忽略
	Delete(ctx context.Context, url string) error
}

// NewKey 生成对象 key：{prefix}/{随机串}-{清洗后的文件名}
func NewKey(prefix, filename string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return path.Join(prefix, hex.EncodeToString(b)+"-"+sanitize(filename))
}

func sanitize(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	s := strings.TrimLeft(sb.String(), ".")
	if s == "" {
		return "file"
	}
	return s
}
