package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rental-admin/api"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/cache"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage/repository"
	sqlitedriver "rental-admin/internal/shared/storage/driver/sqlite"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:        "test-access-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  24 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
	}
}

type testEnv struct {
	store    *repository.Store
	sessions *cache.Memory
	events   *eventbus.Memory
	cfg      config.AuthConfig
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })

	doc, err := api.LoadSpec()
	require.NoError(t, err)

	env := &testEnv{
		store:    store,
		sessions: cache.NewMemory(0),
		events:   eventbus.NewMemory(),
		cfg:      testConfig(),
	}
	t.Cleanup(func() { env.sessions.Close() })

	mux := http.NewServeMux()
	authn := NewAuthenticator(store, env.cfg)
	NewHandler(store, env.sessions, env.events, authn, env.cfg).RegisterRoutes(mux)
	env.handler = httputil.WithSchema(doc)(mux)
	return env
}

func (e *testEnv) createUser(t *testing.T, email, password string, role model.Role, status model.UserStatus) *model.User {
	t.Helper()
	u, err := NewUser(email, password, role, status, e.cfg.BcryptCost)
	require.NoError(t, err)
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) token(t *testing.T, u *model.User) string {
	t.Helper()
	tok, err := GenerateAccessToken(e.cfg, u)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, body, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) (httputil.Envelope, map[string]any) {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	data, _ := env.Data.(map[string]any)
	return env, data
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookie {
			return c
		}
	}
	return nil
}

// ============================================================================
// 令牌与密码
// ============================================================================

func TestTokens(t *testing.T) {
	cfg := testConfig()
	u := &model.User{ID: "usr-1", Email: "a@example.com", Roles: []model.Role{model.RoleOwner}, Status: model.UserStatusApproved}

	access, err := GenerateAccessToken(cfg, u)
	require.NoError(t, err)
	claims, err := ParseAccessToken(cfg, access)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.Subject)
	assert.Equal(t, []model.Role{model.RoleOwner}, claims.Roles)
	assert.Equal(t, model.UserStatusApproved, claims.Status)

	refresh, expires, err := GenerateRefreshToken(cfg, "usr-1", "sess-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(cfg.RefreshTokenTTL), expires, time.Minute)
	rc, err := ParseRefreshToken(cfg, refresh)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rc.ID)

	// 两种令牌使用不同密钥，不能互换
	_, err = ParseRefreshToken(cfg, access)
	assert.Error(t, err)
	_, err = ParseAccessToken(cfg, refresh)
	assert.Error(t, err)

	expired := cfg
	expired.AccessTokenTTL = -time.Minute
	old, err := GenerateAccessToken(expired, u)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, old)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	// 同一密钥但 typ 不是 access
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Type:             TokenRefresh,
	})
	s, err := forged.SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, s)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestNewUserRejectsBadEmail(t *testing.T) {
	_, err := NewUser("not-an-email", "secret123", model.RoleTenant, model.UserStatusPending, bcrypt.MinCost)
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

// ============================================================================
// 登录 / 刷新 / 注销
// ============================================================================

func TestLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "owner@example.com", "secret123", model.RoleOwner, model.UserStatusApproved)

	rec := env.do(t, "POST", "/api/v1/auth/login", `{"email":" OWNER@example.com ","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	_, data := envelope(t, rec)
	access, _ := data["accessToken"].(string)
	require.NotEmpty(t, access)

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, RefreshCookiePath, cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	stored, err := env.store.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoggedIn)

	rec = env.do(t, "GET", "/api/v1/auth/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	_, data = envelope(t, rec)
	assert.Equal(t, user.ID, data["id"])

	rec = env.do(t, "POST", "/api/v1/auth/refresh-token", "", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data = envelope(t, rec)
	assert.NotEmpty(t, data["accessToken"])

	rec = env.do(t, "POST", "/api/v1/auth/logout", "", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	rec = env.do(t, "POST", "/api/v1/auth/refresh-token", "", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/auth/refresh-token", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/refresh-token", "", "", &http.Cookie{Name: RefreshCookie, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejections(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ok@example.com", "secret123", model.RoleTenant, model.UserStatusApproved)
	env.createUser(t, "blocked@example.com", "secret123", model.RoleTenant, model.UserStatusBlocked)
	env.createUser(t, "declined@example.com", "secret123", model.RoleTenant, model.UserStatusDeclined)
	g, err := NewUser("social@example.com", "secret123", model.RoleTenant, model.UserStatusApproved, bcrypt.MinCost)
	require.NoError(t, err)
	g.AuthType = model.AuthTypeGoogle
	require.NoError(t, env.store.CreateUser(context.Background(), g))

	tests := []struct {
		name  string
		email string
		pass  string
		code  int
	}{
		{"unknown email", "nobody@example.com", "secret123", http.StatusUnauthorized},
		{"wrong password", "ok@example.com", "nope", http.StatusUnauthorized},
		{"blocked", "blocked@example.com", "secret123", http.StatusForbidden},
		{"declined", "declined@example.com", "secret123", http.StatusUnauthorized},
		{"social account", "social@example.com", "secret123", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"email":"` + tt.email + `","password":"` + tt.pass + `"}`
			rec := env.do(t, "POST", "/api/v1/auth/login", body, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Nil(t, refreshCookie(rec))
		})
	}

	rec := env.do(t, "POST", "/api/v1/auth/login", `{"email":"ok@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// 中间件
// ============================================================================

func TestInactiveUsersFailProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)
	for _, status := range []model.UserStatus{model.UserStatusBlocked, model.UserStatusPending, model.UserStatusDeclined} {
		t.Run(string(status), func(t *testing.T) {
			u := env.createUser(t, string(status)+"@example.com", "secret123", model.RoleAdmin, status)
			tok := env.token(t, u)

			rec := env.do(t, "POST", "/api/v1/auth/change-password", `{"oldPassword":"secret123","newPassword":"another1"}`, tok)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = env.do(t, "PATCH", "/api/v1/auth/users/"+u.ID+"/status", `{"status":"approved"}`, tok)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = env.do(t, "GET", "/api/v1/auth/me", "", tok)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body, _ := envelope(t, rec)
			assert.Equal(t, "Account is "+string(status), body.Message)
		})
	}
}

func TestMissingAndInvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/v1/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, "GET", "/api/v1/auth/me", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ghost := &model.User{ID: "usr-ghost", Email: "ghost@example.com", Roles: []model.Role{model.RoleAdmin}, Status: model.UserStatusApproved}
	rec = env.do(t, "GET", "/api/v1/auth/me", "", env.token(t, ghost))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGate(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.createUser(t, "tenant@example.com", "secret123", model.RoleTenant, model.UserStatusApproved)
	super := env.createUser(t, "root@example.com", "secret123", model.RoleSuperAdmin, model.UserStatusApproved)

	body := `{"status":"hold"}`
	rec := env.do(t, "PATCH", "/api/v1/auth/users/"+tenant.ID+"/status", body, env.token(t, tenant))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, "PATCH", "/api/v1/auth/users/"+tenant.ID+"/status", body, env.token(t, super))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestApprovedOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := ApprovedOnly(ok)

	for status, want := range map[model.UserStatus]int{
		model.UserStatusApproved: http.StatusNoContent,
		model.UserStatusHold:     http.StatusForbidden,
	} {
		req := httptest.NewRequest("POST", "/", nil)
		req = req.WithContext(WithUser(req.Context(), &model.User{ID: "u", Roles: []model.Role{model.RoleTenant}, Status: status}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, status)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// 注册与密码管理
// ============================================================================

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "declined@example.com", "secret123", model.RoleTenant, model.UserStatusDeclined)

	rec := env.do(t, "POST", "/api/v1/auth/register", `{"email":"New@Example.com","password":"secret123","role":"owner"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := envelope(t, rec)
	assert.Equal(t, "new@example.com", data["email"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, []any{"owner"}, data["roles"])

	rec = env.do(t, "POST", "/api/v1/auth/register", `{"email":"new@example.com","password":"secret123"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/register", `{"email":"declined@example.com","password":"secret123"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	msg, _ := envelope(t, rec)
	assert.Contains(t, msg.Message, "previously declined")

	rec = env.do(t, "POST", "/api/v1/auth/register", `{"email":"x@example.com","password":"secret123","role":"admin"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/register", `{"email":"y@example.com","password":"123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "me@example.com", "secret123", model.RoleTenant, model.UserStatusApproved)
	tok := env.token(t, u)

	rec := env.do(t, "POST", "/api/v1/auth/change-password", `{"oldPassword":"wrong","newPassword":"newsecret"}`, tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/change-password", `{"oldPassword":"secret123","newPassword":"newsecret"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, "POST", "/api/v1/auth/login", `{"email":"me@example.com","password":"newsecret"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.store.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.PasswordChangedAt)

	rec = env.do(t, "POST", "/api/v1/auth/reset-password", `{"newPassword":"third-one"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "POST", "/api/v1/auth/login", `{"email":"me@example.com","password":"third-one"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminResetPassword(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", "secret123", model.RoleAdmin, model.UserStatusApproved)
	target := env.createUser(t, "target@example.com", "secret123", model.RoleTenant, model.UserStatusApproved)
	pending := env.createUser(t, "pending@example.com", "secret123", model.RoleTenant, model.UserStatusPending)
	tok := env.token(t, admin)

	rec := env.do(t, "POST", "/api/v1/auth/login", `{"email":"target@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := refreshCookie(rec)

	rec = env.do(t, "POST", "/api/v1/auth/admin/reset-password", `{"id":"`+pending.ID+`","newPassword":"newsecret"}`, tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/admin/reset-password", `{"id":"usr-missing","newPassword":"newsecret"}`, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/admin/reset-password", `{"id":"`+target.ID+`","newPassword":"newsecret"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 旧会话已注销
	rec = env.do(t, "POST", "/api/v1/auth/refresh-token", "", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateUserStatusRevokesAndPublishes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", "secret123", model.RoleAdmin, model.UserStatusApproved)
	target := env.createUser(t, "target@example.com", "secret123", model.RoleOwner, model.UserStatusApproved)

	rec := env.do(t, "POST", "/api/v1/auth/login", `{"email":"target@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := refreshCookie(rec)

	rec = env.do(t, "PATCH", "/api/v1/auth/users/"+target.ID+"/status", `{"status":"blocked"}`, env.token(t, admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := envelope(t, rec)
	assert.Equal(t, "blocked", data["status"])

	rec = env.do(t, "POST", "/api/v1/auth/refresh-token", "", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	events, err := env.events.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventUserStatusChanged, events[0].Type)
	assert.True(t, events[0].VisibleTo(target.ID))

	rec = env.do(t, "PATCH", "/api/v1/auth/users/usr-missing/status", `{"status":"approved"}`, env.token(t, admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, "PATCH", "/api/v1/auth/users/"+target.ID+"/status", `{"status":"archived"}`, env.token(t, admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// 初始管理员
// ============================================================================

func TestEnsureSeedAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := EnsureSeedAdmin(ctx, env.store, "", "", bcrypt.MinCost)
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = EnsureSeedAdmin(ctx, env.store, "Root@Example.com", "secret123", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsSuperAdmin())
	assert.Equal(t, model.UserStatusApproved, u.Status)
	assert.Equal(t, "root@example.com", u.Email)

	// 已有用户时跳过
	u, err = EnsureSeedAdmin(ctx, env.store, "other@example.com", "secret123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.Nil(t, u)

	existing, created, err := SeedAdmin(ctx, env.store, "root@example.com", "whatever", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "root@example.com", existing.Email)
}
