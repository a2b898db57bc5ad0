// Package tenant 租客档案管理
package tenant

import (
	"errors"
	"log"
	"net/http"
	"time"

	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
)

// Store 租客处理器依赖的存储
type Store interface {
	storage.UserStore
	storage.TenantStore
}

// Handler 租客 HTTP 处理器
type Handler struct {
	store      Store
	authn      *auth.Authenticator
	bcryptCost int
}

// NewHandler 创建租客处理器
func NewHandler(store Store, authn *auth.Authenticator, bcryptCost int) *Handler {
	return &Handler{store: store, authn: authn, bcryptCost: bcryptCost}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	staff := []model.Role{model.RoleAdmin, model.RoleStaff}
	mux.Handle("GET /api/v1/tenants", h.authn.Protect(h.List, staff...))
	mux.Handle("POST /api/v1/tenants", h.authn.Protect(h.Create, staff...))
	mux.Handle("GET /api/v1/tenants/profile", h.authn.Protect(h.GetProfile))
	mux.Handle("PUT /api/v1/tenants/profile", h.authn.Protect(h.UpdateProfile))
	mux.Handle("GET /api/v1/tenants/{id}", h.authn.Protect(h.Get, staff...))
	mux.Handle("PUT /api/v1/tenants/{id}", h.authn.Protect(h.Update, staff...))
	mux.Handle("DELETE /api/v1/tenants/{id}", h.authn.Protect(h.Delete, model.RoleAdmin))
}

// tenantRequest 请求体；dateOfBirth 接受 YYYY-MM-DD 或 RFC 3339，空串表示清除
type tenantRequest struct {
	model.Tenant
	Password    string  `json:"password"`
	DateOfBirth *string `json:"dateOfBirth"`
}

func (req *tenantRequest) apply(t *model.Tenant) error {
	*t = req.Tenant
	if req.DateOfBirth == nil {
		return nil
	}
	if *req.DateOfBirth == "" {
		t.DateOfBirth = nil
		return nil
	}
	dob, err := httputil.ParseDate(*req.DateOfBirth)
	if err != nil {
		return err
	}
	t.DateOfBirth = &dob
	return nil
}

// Create 创建租客档案及其登录账户
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "tenant.create", err)
		return
	}
	var t model.Tenant
	if err := req.apply(&t); err != nil {
		httputil.FromError(w, "tenant.create", err)
		return
	}
	now := time.Now().UTC()
	t.ID = model.NewID("ten")
	t.CreatedAt, t.UpdatedAt = now, now
	t.Normalize()
	if err := t.Validate(); err != nil {
		httputil.FromError(w, "tenant.create", err)
		return
	}

	existing, err := h.store.GetUserByEmail(r.Context(), t.Email)
	if err != nil {
		httputil.FromError(w, "tenant.create", err)
		return
	}
	if existing != nil {
		httputil.Error(w, http.StatusConflict, "User with this email already exists")
		return
	}

	user, err := auth.NewUser(t.Email, req.Password, model.RoleTenant, model.UserStatusApproved, h.bcryptCost)
	if err != nil {
		httputil.FromError(w, "tenant.create", err)
		return
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.Error(w, http.StatusConflict, "User with this email already exists")
			return
		}
		httputil.FromError(w, "tenant.create", err)
		return
	}

	t.UserID = user.ID
	if err := h.store.CreateTenant(r.Context(), &t); err != nil {
		log.Printf("[tenant.create] profile creation failed, user %s left without profile: %v", user.ID, err)
		httputil.FromError(w, "tenant.create", err)
		return
	}
	log.Printf("[tenant] Created tenant %s for user %s", t.ID, user.ID)
	httputil.Success(w, http.StatusCreated, "Tenant created successfully", &t)
}

// List 分页查询租客
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.FromError(w, "tenant.list", err)
		return
	}
	q := r.URL.Query()
	tenants, total, err := h.store.ListTenants(r.Context(), storage.ProfileFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Page:   page,
	})
	if err != nil {
		httputil.FromError(w, "tenant.list", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Tenants retrieved successfully", httputil.List("tenants", tenants, page, total))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.Success(w, http.StatusOK, "Tenant retrieved successfully", t)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadOwn(w, r)
	if !ok {
		return
	}
	httputil.Success(w, http.StatusOK, "Tenant profile retrieved successfully", t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	h.update(w, r, t, false)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadOwn(w, r)
	if !ok {
		return
	}
	h.update(w, r, t, true)
}

// Delete 删除租客档案及其登录账户
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteTenant(r.Context(), t.ID); err != nil {
		httputil.FromError(w, "tenant.delete", err)
		return
	}
	if t.UserID != "" {
		if err := h.store.DeleteUser(r.Context(), t.UserID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[tenant.delete] DeleteUser(%s) error: %v", t.UserID, err)
		}
	}
	log.Printf("[tenant] Deleted tenant %s", t.ID)
	httputil.Success(w, http.StatusOK, "Tenant deleted successfully", nil)
}

// ============================================================================
// 内部辅助
// ============================================================================

func (h *Handler) update(w http.ResponseWriter, r *http.Request, existing *model.Tenant, self bool) {
	req := tenantRequest{Tenant: *existing}
	if existing.EmergencyContact != nil {
		ec := *existing.EmergencyContact
		req.EmergencyContact = &ec
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "tenant.update", err)
		return
	}
	var t model.Tenant
	if err := req.apply(&t); err != nil {
		httputil.FromError(w, "tenant.update", err)
		return
	}
	t.ID, t.UserID, t.CreatedAt = existing.ID, existing.UserID, existing.CreatedAt
	if self {
		t.Status = existing.Status
	}
	t.UpdatedAt = time.Now().UTC()
	t.Normalize()
	if err := t.Validate(); err != nil {
		httputil.FromError(w, "tenant.update", err)
		return
	}

	if t.Email != existing.Email {
		if err := h.syncEmail(r, t.UserID, t.Email); err != nil {
			httputil.FromError(w, "tenant.update", err)
			return
		}
	}
	if err := h.store.UpdateTenant(r.Context(), &t); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.Error(w, http.StatusConflict, "Email already in use")
			return
		}
		httputil.FromError(w, "tenant.update", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Tenant updated successfully", &t)
}

func (h *Handler) syncEmail(r *http.Request, userID, email string) error {
	taken, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		return err
	}
	if taken != nil && taken.ID != userID {
		return httputil.NewError(http.StatusConflict, "Email already in use")
	}
	if userID == "" {
		return nil
	}
	err = h.store.UpdateUserEmail(r.Context(), userID, email)
	if errors.Is(err, storage.ErrDuplicate) {
		return httputil.NewError(http.StatusConflict, "Email already in use")
	}
	return err
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Tenant, bool) {
	t, err := h.store.GetTenant(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.FromError(w, "tenant.get", err)
		return nil, false
	}
	if t == nil {
		httputil.Error(w, http.StatusNotFound, "Tenant not found")
		return nil, false
	}
	return t, true
}

func (h *Handler) loadOwn(w http.ResponseWriter, r *http.Request) (*model.Tenant, bool) {
	user := auth.CurrentUser(r.Context())
	t, err := h.store.GetTenantByUserID(r.Context(), user.ID)
	if err != nil {
		httputil.FromError(w, "tenant.profile", err)
		return nil, false
	}
	if t == nil {
		httputil.Error(w, http.StatusNotFound, "Tenant profile not found")
		return nil, false
	}
	return t, true
}
