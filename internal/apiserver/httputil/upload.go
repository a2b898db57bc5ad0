package httputil

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"rental-admin/internal/shared/objstore"
)

// Files 返回 multipart 表单中某字段的文件，form 为 nil 时返回 nil
func Files(form *multipart.Form, field string) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	return form.File[field]
}

// SaveFiles 逐个上传文件并返回访问 URL
//
// imagesOnly 为 true 时只接受 image/* 类型。任一文件失败即返回错误，
// 已上传的对象不回收。
func SaveFiles(ctx context.Context, store objstore.Store, prefix string, files []*multipart.FileHeader, imagesOnly bool) ([]string, error) {
	if imagesOnly {
		for _, fh := range files {
			if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
				return nil, NewError(http.StatusBadRequest, "only image files are allowed: %s", fh.Filename)
			}
		}
	}
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := saveFile(ctx, store, prefix, fh)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// SaveFile 上传单个文件，fh 为 nil 时返回空串
func SaveFile(ctx context.Context, store objstore.Store, prefix string, fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", nil
	}
	return saveFile(ctx, store, prefix, fh)
}

func saveFile(ctx context.Context, store objstore.Store, prefix string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := store.Put(ctx, objstore.NewKey(prefix, fh.Filename), f, fh.Size, contentType)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fh.Filename, err)
	}
	return url, nil
}
