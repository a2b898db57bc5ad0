package auth

import (
	"context"
	"log"
	"net/http"
	"strings"

	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
	"rental-admin/pkg/logging"
)

// Authenticator 解析 Bearer 令牌并加载用户
type Authenticator struct {
	users storage.UserStore
	cfg   config.AuthConfig
}

// NewAuthenticator 创建认证器
func NewAuthenticator(users storage.UserStore, cfg config.AuthConfig) *Authenticator {
	return &Authenticator{users: users, cfg: cfg}
}

// Resolve 校验访问令牌并加载用户
//
// 令牌无效、用户不存在、状态为 blocked / pending / declined 时返回 401。
func (a *Authenticator) Resolve(ctx context.Context, token string) (*model.User, error) {
	claims, err := ParseAccessToken(a.cfg, token)
	if err != nil {
		log.Printf("[auth] token parse error: %v", err)
		return nil, httputil.NewError(http.StatusUnauthorized, "Not authorized, token failed")
	}
	user, err := a.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, httputil.NewError(http.StatusUnauthorized, "User not found")
	}
	if !user.CanAuthenticate() {
		return nil, httputil.NewError(http.StatusUnauthorized, "Account is %s", user.Status)
	}
	return user, nil
}

// Authenticate 认证中间件，成功后把用户注入 context
func (a *Authenticator) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.Error(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}
			user, err := a.Resolve(r.Context(), token)
			if err != nil {
				httputil.FromError(w, "auth", err)
				return
			}
			ctx := WithUser(r.Context(), user)
			ctx = context.WithValue(ctx, logging.UserIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles 角色门禁：用户角色与 roles 无交集时返回 403，superadmin 始终放行
func RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r.Context())
			if user == nil {
				httputil.FromError(w, "auth", httputil.ErrUnauthorized)
				return
			}
			if len(roles) > 0 && !user.IsSuperAdmin() && !user.HasRole(roles...) {
				httputil.Error(w, http.StatusForbidden, "Role is not authorized to access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ApprovedOnly 仅允许 approved 状态的用户（hold 用户可浏览不可提交）
func ApprovedOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r.Context())
		if user == nil {
			httputil.FromError(w, "auth", httputil.ErrUnauthorized)
			return
		}
		if user.Status != model.UserStatusApproved && !user.IsSuperAdmin() {
			httputil.Error(w, http.StatusForbidden, "Account is not approved")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Protect 认证 + 角色门禁；roles 为空时只要求登录
func (a *Authenticator) Protect(h http.HandlerFunc, roles ...model.Role) http.Handler {
	return a.Authenticate()(RequireRoles(roles...)(h))
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
