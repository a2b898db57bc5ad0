package httputil

import (
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"rental-admin/internal/shared/storage"
)

// BindQuery 绑定可选查询参数，dest 为指向指针的指针（如 **int）；参数缺失时保持 nil
func BindQuery(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return NewError(http.StatusBadRequest, "invalid query parameter %s", name)
	}
	return nil
}

// PageParams 解析 page / limit 并修正到合法范围
func PageParams(r *http.Request) (storage.Page, error) {
	var page, limit *int
	if err := BindQuery(r, "page", &page); err != nil {
		return storage.Page{}, err
	}
	if err := BindQuery(r, "limit", &limit); err != nil {
		return storage.Page{}, err
	}
	var p storage.Page
	if page != nil {
		p.Page = *page
	}
	if limit != nil {
		p.Limit = *limit
	}
	return p.Normalize(), nil
}

// SortParams 解析 sortBy / sortOrder，默认 createdAt 倒序
func SortParams(r *http.Request, valid func(string) bool) (storage.Sort, error) {
	q := r.URL.Query()
	s := storage.Sort{Field: storage.SortCreatedAt, Desc: true}
	if f := q.Get("sortBy"); f != "" {
		if !valid(f) {
			return s, NewError(http.StatusBadRequest, "invalid sortBy %q", f)
		}
		s.Field = f
	}
	switch strings.ToLower(q.Get("sortOrder")) {
	case "", "desc":
	case "asc":
		s.Desc = false
	default:
		return s, NewError(http.StatusBadRequest, "sortOrder must be asc or desc")
	}
	return s, nil
}

// ParseDate 解析 RFC 3339 时间或 YYYY-MM-DD 日期（按 UTC）
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, NewError(http.StatusBadRequest, "invalid date %q", s)
	}
	return t, nil
}
