package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// MaxJSONBody JSON 请求体上限
const MaxJSONBody = 1 << 20

// FormDataField multipart 请求中承载 JSON 文档的字段名
const FormDataField = "data"

type schemaKey struct{}

// WithSchema 将 OpenAPI 文档放入请求上下文，供 DecodeJSON 校验请求体
func WithSchema(doc *openapi3.T) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), schemaKey{}, doc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func schemaFrom(ctx context.Context) *openapi3.T {
	doc, _ := ctx.Value(schemaKey{}).(*openapi3.T)
	return doc
}

// DecodeJSON 读取 JSON 请求体，按路由对应的 OpenAPI 请求体 schema 校验后解码到 v
func DecodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxJSONBody+1))
	if err != nil {
		return NewError(http.StatusBadRequest, "failed to read request body")
	}
	if len(data) > MaxJSONBody {
		return NewError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return decodeBytes(r, data, v)
}

// DecodeForm 解码 JSON 或 multipart 请求
//
// multipart 请求的 JSON 文档放在 data 字段，文件字段通过返回的 form 读取；
// JSON 请求返回 nil form。
func DecodeForm(r *http.Request, maxMemory int64, v any) (*multipart.Form, error) {
	if !IsMultipart(r) {
		return nil, DecodeJSON(r, v)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, NewError(http.StatusBadRequest, "invalid multipart form: %v", err)
	}
	data := r.FormValue(FormDataField)
	if strings.TrimSpace(data) == "" {
		data = "{}"
	}
	if err := decodeBytes(r, []byte(data), v); err != nil {
		return nil, err
	}
	return r.MultipartForm, nil
}

// IsMultipart 请求是否为 multipart/form-data
func IsMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func decodeBytes(r *http.Request, data []byte, v any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return NewError(http.StatusBadRequest, "request body is required")
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewError(http.StatusBadRequest, "invalid JSON body")
	}
	if err := validateBody(r, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return NewError(http.StatusBadRequest, "invalid value for field %s", te.Field)
		}
		var pe *time.ParseError
		if errors.As(err, &pe) {
			return NewError(http.StatusBadRequest, "invalid date %q", pe.Value)
		}
		return NewError(http.StatusBadRequest, "invalid request body: %v", err)
	}
	return nil
}

// validateBody 用 r.Pattern 定位 OpenAPI operation 并校验请求体
//
// 上下文中没有文档、路由不在文档中或 operation 没有 JSON 请求体时跳过。
func validateBody(r *http.Request, value any) error {
	doc := schemaFrom(r.Context())
	if doc == nil || doc.Paths == nil {
		return nil
	}
	method, path := splitPattern(r.Pattern, r.Method)
	if path == "" {
		return nil
	}
	item := doc.Paths.Find(path)
	if item == nil {
		return nil
	}
	op := item.GetOperation(method)
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	mt := op.RequestBody.Value.Content.Get("application/json")
	if mt == nil || mt.Schema == nil || mt.Schema.Value == nil {
		return nil
	}
	if err := mt.Schema.Value.VisitJSON(value); err != nil {
		return NewError(http.StatusBadRequest, "%s", schemaMessage(err))
	}
	return nil
}

func schemaMessage(err error) string {
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if ptr := se.JSONPointer(); len(ptr) > 0 {
			return strings.Join(ptr, ".") + ": " + se.Reason
		}
		return se.Reason
	}
	return err.Error()
}

// splitPattern 把 ServeMux 路由模式拆成方法与路径，如 "PATCH /api/v1/x/{id}"
func splitPattern(pattern, fallbackMethod string) (method, path string) {
	if pattern == "" {
		return "", ""
	}
	method = fallbackMethod
	if m, rest, ok := strings.Cut(pattern, " "); ok {
		method, pattern = m, strings.TrimSpace(rest)
	}
	if i := strings.Index(pattern, "/"); i > 0 {
		pattern = pattern[i:] // 去掉 host
	}
	return method, strings.TrimSuffix(pattern, "{$}")
}
