package auth

import (
	"errors"
	"log"
	"net/http"
	"time"

	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/cache"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
)

// 刷新令牌 Cookie
const (
	RefreshCookie     = "refreshToken"
	RefreshCookiePath = "/api/v1/auth"
)

// Handler 认证 HTTP 处理器
type Handler struct {
	users    storage.UserStore
	sessions cache.SessionCache
	events   eventbus.EventBus
	authn    *Authenticator
	cfg      config.AuthConfig
}

// NewHandler 创建认证处理器
func NewHandler(users storage.UserStore, sessions cache.SessionCache, events eventbus.EventBus, authn *Authenticator, cfg config.AuthConfig) *Handler {
	return &Handler{users: users, sessions: sessions, events: events, authn: authn, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh-token", h.RefreshToken)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.Handle("GET /api/v1/auth/me", h.authn.Protect(h.Me))
	mux.Handle("POST /api/v1/auth/change-password", h.authn.Protect(h.ChangePassword))
	mux.Handle("POST /api/v1/auth/reset-password", h.authn.Protect(h.ResetPassword))
	mux.Handle("POST /api/v1/auth/admin/reset-password", h.authn.Protect(h.AdminResetPassword, model.RoleAdmin))
	mux.Handle("PATCH /api/v1/auth/users/{id}/status", h.authn.Protect(h.UpdateUserStatus, model.RoleAdmin))
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type resetPasswordRequest struct {
	ID          string `json:"id"`
	NewPassword string `json:"newPassword"`
}

type statusRequest struct {
	Status model.UserStatus `json:"status"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        *model.User `json:"user"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 自助注册，账户状态为 pending，需管理员审批
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "auth.register", err)
		return
	}
	if req.Role == "" {
		req.Role = model.RoleTenant
	}
	if req.Role != model.RoleTenant && req.Role != model.RoleOwner {
		httputil.Error(w, http.StatusBadRequest, "role must be tenant or owner")
		return
	}

	email := model.NormalizeEmail(req.Email)
	existing, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		httputil.FromError(w, "auth.register", err)
		return
	}
	if existing != nil {
		if existing.Status == model.UserStatusDeclined {
			httputil.Error(w, http.StatusConflict, "This email was previously declined")
			return
		}
		httputil.Error(w, http.StatusConflict, "User already exists")
		return
	}

	user, err := NewUser(email, req.Password, req.Role, model.UserStatusPending, h.cfg.BcryptCost)
	if err != nil {
		httputil.FromError(w, "auth.register", err)
		return
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.Error(w, http.StatusConflict, "User already exists")
			return
		}
		httputil.FromError(w, "auth.register", err)
		return
	}

	log.Printf("[auth] User registered: %s (%s)", user.Email, user.ID)
	httputil.Success(w, http.StatusCreated, "Registration successful, awaiting approval", user)
}

// Login 密码登录
//
// 未知邮箱 / declined → 401；blocked → 403；非 standard 注册方式 → 403；密码错误 → 401。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "auth.login", err)
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), model.NormalizeEmail(req.Email))
	if err != nil {
		httputil.FromError(w, "auth.login", err)
		return
	}
	switch {
	case user == nil, user.Status == model.UserStatusDeclined:
		httputil.Error(w, http.StatusUnauthorized, "Invalid email or password")
		return
	case user.Status == model.UserStatusBlocked:
		httputil.Error(w, http.StatusForbidden, "Your account has been blocked")
		return
	case user.AuthType != model.AuthTypeStandard:
		httputil.Error(w, http.StatusForbidden, "Please sign in with "+string(user.AuthType))
		return
	case !CheckPassword(req.Password, user.PasswordHash):
		httputil.Error(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	now := time.Now().UTC()
	if err := h.users.UpdateUserLastLogin(r.Context(), user.ID, now); err != nil {
		log.Printf("[auth.login] UpdateUserLastLogin error: %v", err)
	} else {
		user.LastLoggedIn = &now
	}

	accessToken, err := GenerateAccessToken(h.cfg, user)
	if err != nil {
		httputil.FromError(w, "auth.login", err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		httputil.FromError(w, "auth.login", err)
		return
	}

	log.Printf("[auth] User logged in: %s", user.Email)
	httputil.Success(w, http.StatusOK, "Login successful", loginResponse{AccessToken: accessToken, User: user})
}

// RefreshToken 用 Cookie 中的刷新令牌换取新的访问令牌
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		httputil.Error(w, http.StatusUnauthorized, "Refresh token not found")
		return
	}
	claims, err := ParseRefreshToken(h.cfg, cookie.Value)
	if err != nil {
		httputil.Error(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	session, err := h.sessions.GetSession(r.Context(), claims.ID)
	if err != nil {
		httputil.FromError(w, "auth.refresh", err)
		return
	}
	if session == nil || session.UserID != claims.Subject {
		httputil.Error(w, http.StatusUnauthorized, "Session expired, please log in again")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		httputil.FromError(w, "auth.refresh", err)
		return
	}
	if user == nil || !user.CanAuthenticate() {
		httputil.Error(w, http.StatusUnauthorized, "User not found")
		return
	}

	accessToken, err := GenerateAccessToken(h.cfg, user)
	if err != nil {
		httputil.FromError(w, "auth.refresh", err)
		return
	}
	h.setRefreshCookie(w, cookie.Value, session.ExpiresAt)
	httputil.Success(w, http.StatusOK, "Token refreshed", map[string]string{"accessToken": accessToken})
}

// Logout 注销刷新会话并清除 Cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil && cookie.Value != "" {
		if claims, err := ParseRefreshToken(h.cfg, cookie.Value); err == nil {
			if err := h.sessions.DeleteSession(r.Context(), claims.ID); err != nil {
				log.Printf("[auth.logout] DeleteSession error: %v", err)
			}
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.Success(w, http.StatusOK, "Logged out successfully", nil)
}

// Me 当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, "User retrieved successfully", CurrentUser(r.Context()))
}

// ChangePassword 校验旧密码后修改密码
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	var req changePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "auth.change_password", err)
		return
	}
	if !CheckPassword(req.OldPassword, user.PasswordHash) {
		httputil.Error(w, http.StatusForbidden, "Old password is incorrect")
		return
	}
	if err := h.setPassword(r, user.ID, req.NewPassword); err != nil {
		httputil.FromError(w, "auth.change_password", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Password changed successfully", nil)
}

// ResetPassword 已登录用户直接设置新密码
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	var req resetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "auth.reset_password", err)
		return
	}
	if err := h.setPassword(r, user.ID, req.NewPassword); err != nil {
		httputil.FromError(w, "auth.reset_password", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Password reset successfully", nil)
}

// AdminResetPassword 管理员重置他人密码，并注销其全部刷新会话
func (h *Handler) AdminResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "auth.admin_reset_password", err)
		return
	}
	target, err := h.users.GetUserByID(r.Context(), req.ID)
	if err != nil {
		httputil.FromError(w, "auth.admin_reset_password", err)
		return
	}
	if target == nil {
		httputil.Error(w, http.StatusNotFound, "User not found")
		return
	}
	if target.Status == model.UserStatusBlocked || target.Status == model.UserStatusPending {
		httputil.Error(w, http.StatusForbidden, "Cannot reset password for a "+string(target.Status)+" user")
		return
	}
	if err := h.setPassword(r, target.ID, req.NewPassword); err != nil {
		httputil.FromError(w, "auth.admin_reset_password", err)
		return
	}
	h.revokeSessions(r, target.ID)
	log.Printf("[auth] Password reset by %s for user %s", CurrentUser(r.Context()).ID, target.ID)
	httputil.Success(w, http.StatusOK, "Password reset successfully", nil)
}

// UpdateUserStatus 管理员审批 / 封禁用户
//
// blocked 与 declined 会立即注销该用户的刷新会话。
func (h *Handler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "auth.user_status", err)
		return
	}
	if !model.ValidUserStatus(req.Status) {
		httputil.Error(w, http.StatusBadRequest, "invalid status")
		return
	}
	if err := h.users.UpdateUserStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.Error(w, http.StatusNotFound, "User not found")
			return
		}
		httputil.FromError(w, "auth.user_status", err)
		return
	}
	if req.Status == model.UserStatusBlocked || req.Status == model.UserStatusDeclined {
		h.revokeSessions(r, id)
	}

	eventbus.Emit(r.Context(), h.events, &eventbus.Event{
		Type:     eventbus.EventUserStatusChanged,
		Audience: []string{id},
		Data:     map[string]any{"userId": id, "status": req.Status},
	})

	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		httputil.FromError(w, "auth.user_status", err)
		return
	}
	log.Printf("[auth] User %s status changed to %s", id, req.Status)
	httputil.Success(w, http.StatusOK, "User status updated", user)
}

// ============================================================================
// 会话与密码
// ============================================================================

// startSession 登记刷新会话并下发 Cookie
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	sessionID := newSessionID()
	token, expires, err := GenerateRefreshToken(h.cfg, userID, sessionID)
	if err != nil {
		return err
	}
	session := &cache.Session{
		ID:        sessionID,
		UserID:    userID,
		UserAgent: r.UserAgent(),
		ClientIP:  r.RemoteAddr,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires.UTC(),
	}
	if err := h.sessions.SaveSession(r.Context(), session); err != nil {
		return err
	}
	h.setRefreshCookie(w, token, expires)
	return nil
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     RefreshCookiePath,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) setPassword(r *http.Request, userID, password string) error {
	if len(password) < model.MinPasswordLength {
		return httputil.NewError(http.StatusBadRequest, "password must be at least %d characters", model.MinPasswordLength)
	}
	hash, err := HashPassword(password, h.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return h.users.UpdateUserPassword(r.Context(), userID, hash, time.Now().UTC())
}

func (h *Handler) revokeSessions(r *http.Request, userID string) {
	if err := h.sessions.DeleteUserSessions(r.Context(), userID); err != nil {
		log.Printf("[auth] DeleteUserSessions(%s) error: %v", userID, err)
	}
}
