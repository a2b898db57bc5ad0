// Package apitest HTTP 处理器测试共用的环境
//
// 使用 SQLite 内存库（带真实唯一索引）、进程内会话缓存与事件总线、临时目录对象存储。
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rental-admin/api"
	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/cache"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/objstore"
	sqlitedriver "rental-admin/internal/shared/storage/driver/sqlite"
	"rental-admin/internal/shared/storage/repository"
)

// Env 测试环境
type Env struct {
	Store    *repository.Store
	Sessions *cache.Memory
	Events   *eventbus.Memory
	Objects  *objstore.Disk
	Cfg      config.AuthConfig
	Authn    *auth.Authenticator
	Mux      *http.ServeMux
	Handler  http.Handler
}

// AuthConfig 测试用认证配置（最小 bcrypt cost）
func AuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:        "test-access-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  24 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
	}
}

// New 创建测试环境；路由注册到 Env.Mux，请求经 Env.Handler 进入（带 OpenAPI 校验）
func New(t *testing.T) *Env {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)

	objects, err := objstore.NewDisk(t.TempDir())
	require.NoError(t, err)

	doc, err := api.LoadSpec()
	require.NoError(t, err)

	cfg := AuthConfig()
	e := &Env{
		Store:    store,
		Sessions: cache.NewMemory(0),
		Events:   eventbus.NewMemory(),
		Objects:  objects,
		Cfg:      cfg,
		Authn:    auth.NewAuthenticator(store, cfg),
		Mux:      http.NewServeMux(),
	}
	e.Handler = httputil.WithSchema(doc)(e.Mux)
	t.Cleanup(func() {
		e.Events.Close()
		e.Sessions.Close()
		store.Close()
	})
	return e
}

// User 创建用户
func (e *Env) User(t *testing.T, email string, role model.Role, status model.UserStatus) *model.User {
	t.Helper()
	u, err := auth.NewUser(email, "secret123", role, status, e.Cfg.BcryptCost)
	require.NoError(t, err)
	require.NoError(t, e.Store.CreateUser(context.Background(), u))
	return u
}

// Token 为用户签发访问令牌
func (e *Env) Token(t *testing.T, u *model.User) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(e.Cfg, u)
	require.NoError(t, err)
	return tok
}

// Owner 为用户创建房东档案
func (e *Env) Owner(t *testing.T, u *model.User) *model.Owner {
	t.Helper()
	now := time.Now().UTC()
	o := &model.Owner{
		ID:        model.NewID("own"),
		Contact:   model.Contact{FirstName: "Olivia", LastName: "Owner", Email: u.Email, Phone: "555-0100", UserID: u.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Normalize()
	require.NoError(t, e.Store.CreateOwner(context.Background(), o))
	return o
}

// Tenant 为用户创建租客档案
func (e *Env) Tenant(t *testing.T, u *model.User) *model.Tenant {
	t.Helper()
	now := time.Now().UTC()
	tn := &model.Tenant{
		ID:        model.NewID("ten"),
		Contact:   model.Contact{FirstName: "Tom", LastName: "Tenant", Email: u.Email, Phone: "555-0200", UserID: u.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	tn.Normalize()
	require.NoError(t, e.Store.CreateTenant(context.Background(), tn))
	return tn
}

// Apartment 创建房源，mutate 可调整字段
func (e *Env) Apartment(t *testing.T, ownerID string, mutate ...func(*model.Apartment)) *model.Apartment {
	t.Helper()
	now := time.Now().UTC()
	apt := &model.Apartment{
		ID:              model.NewID("apt"),
		Title:           "Sunny studio",
		Description:     "Close to the park",
		Address:         model.Address{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701"},
		PropertyDetails: model.PropertyDetails{Bedrooms: 1, Bathrooms: 1, SquareFeet: 650},
		Rent:            model.Rent{Amount: 1200},
		OwnerID:         ownerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, m := range mutate {
		m(apt)
	}
	apt.Normalize()
	require.NoError(t, apt.Validate())
	require.NoError(t, e.Store.CreateApartment(context.Background(), apt))
	return apt
}

// Do 发送 JSON 请求
func (e *Env) Do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.Serve(req, token)
}

// Part multipart 文件字段
type Part struct {
	Field       string
	Filename    string
	ContentType string
}

// Multipart 发送 multipart 请求，data 为 JSON 文档（可为空）
func (e *Env) Multipart(t *testing.T, method, path, data string, parts []Part, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != "" {
		require.NoError(t, mw.WriteField(httputil.FormDataField, data))
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.Field, p.Filename))
		h.Set("Content-Type", p.ContentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte("fake-" + p.Filename))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.Serve(req, token)
}

// Serve 发送任意请求
func (e *Env) Serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.Handler.ServeHTTP(rec, req)
	return rec
}

// Decode 解析响应信封，data 为对象时一并返回
func Decode(t *testing.T, rec *httptest.ResponseRecorder) (httputil.Envelope, map[string]any) {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	data, _ := env.Data.(map[string]any)
	return env, data
}
