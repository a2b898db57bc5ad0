// Package owner 房东档案管理
//
// 管理员/员工创建房东时同时创建登录账户（owner 角色，approved 状态）；
// 档案邮箱变更会同步到关联账户。
package owner

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

// Store 房东处理器依赖的存储
type Store interface {
	storage.UserStore
	storage.OwnerStore
}

// Handler 房东 HTTP 处理器
type Handler struct {
	store      Store
	authn      *auth.Authenticator
	bcryptCost int
}

// NewHandler 创建房东处理器
func NewHandler(store Store, authn *auth.Authenticator, bcryptCost int) *Handler {
	return &Handler{store: store, authn: authn, bcryptCost: bcryptCost}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	staff := []model.Role{model.RoleAdmin, model.RoleStaff}
	mux.Handle("GET /api/v1/owners", h.authn.Protect(h.List, staff...))
	mux.Handle("POST /api/v1/owners", h.authn.Protect(h.Create, staff...))
	mux.Handle("GET /api/v1/owners/profile", h.authn.Protect(h.GetProfile))
	mux.Handle("PUT /api/v1/owners/profile", h.authn.Protect(h.UpdateProfile))
	mux.Handle("GET /api/v1/owners/stats", h.authn.Protect(h.Stats, staff...))
	mux.Handle("GET /api/v1/owners/{id}", h.authn.Protect(h.Get, staff...))
	mux.Handle("PUT /api/v1/owners/{id}", h.authn.Protect(h.Update, staff...))
	mux.Handle("DELETE /api/v1/owners/{id}", h.authn.Protect(h.Delete, model.RoleAdmin))
}

// ownerRequest 创建/更新请求；更新时以现有档案为底合并
type ownerRequest struct {
	model.Owner
	Password string `json:"password"`
}

// Create 创建房东档案及其登录账户
//
// 先建账户再建档案，两次写入不在同一事务中；档案创建失败会留下孤立账户（记录日志）。
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "owner.create", err)
		return
	}
	now := time.Now().UTC()
	o := req.Owner
	o.ID = model.NewID("own")
	o.CreatedAt, o.UpdatedAt = now, now
	o.Normalize()
	if err := o.Validate(); err != nil {
		httputil.FromError(w, "owner.create", err)
		return
	}

	existing, err := h.store.GetUserByEmail(r.Context(), o.Email)
	if err != nil {
		httputil.FromError(w, "owner.create", err)
		return
	}
	if existing != nil {
		httputil.Error(w, http.StatusConflict, "User with this email already exists")
		return
	}

	user, err := auth.NewUser(o.Email, req.Password, model.RoleOwner, model.UserStatusApproved, h.bcryptCost)
	if err != nil {
		httputil.FromError(w, "owner.create", err)
		return
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.Error(w, http.StatusConflict, "User with this email already exists")
			return
		}
		httputil.FromError(w, "owner.create", err)
		return
	}

	o.UserID = user.ID
	if err := h.store.CreateOwner(r.Context(), &o); err != nil {
		log.Printf("[owner.create] profile creation failed, user %s left without profile: %v", user.ID, err)
		httputil.FromError(w, "owner.create", err)
		return
	}
	log.Printf("[owner] Created owner %s for user %s", o.ID, user.ID)
	httputil.Success(w, http.StatusCreated, "Owner created successfully", &o)
}

// List 分页查询房东
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.FromError(w, "owner.list", err)
		return
	}
	q := r.URL.Query()
	owners, total, err := h.store.ListOwners(r.Context(), storage.ProfileFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Page:   page,
	})
	if err != nil {
		httputil.FromError(w, "owner.list", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Owners retrieved successfully", httputil.List("owners", owners, page, total))
}

// Stats 房东总数及各状态数量
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountOwnersByStatus(r.Context())
	if err != nil {
		httputil.FromError(w, "owner.stats", err)
		return
	}
	byStatus := make(map[string]int64, len(model.OwnerStatuses))
	var total int64
	for _, s := range model.OwnerStatuses {
		byStatus[string(s)] = counts[string(s)]
		total += counts[string(s)]
	}
	httputil.Success(w, http.StatusOK, "Owner statistics retrieved successfully", map[string]any{
		"total":    total,
		"byStatus": byStatus,
	})
}

// Get 按 ID 查询
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, ok := h.load(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	httputil.Success(w, http.StatusOK, "Owner retrieved successfully", o)
}

// GetProfile 当前用户的房东档案
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwn(w, r)
	if !ok {
		return
	}
	httputil.Success(w, http.StatusOK, "Owner profile retrieved successfully", o)
}

// Update 管理员/员工更新房东档案
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	o, ok := h.load(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	h.update(w, r, o, false)
}

// UpdateProfile 房东更新自己的档案（不能修改状态）
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwn(w, r)
	if !ok {
		return
	}
	h.update(w, r, o, true)
}

// Delete 删除房东档案及其登录账户
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	o, ok := h.load(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if err := h.store.DeleteOwner(r.Context(), o.ID); err != nil {
		httputil.FromError(w, "owner.delete", err)
		return
	}
	if o.UserID != "" {
		if err := h.store.DeleteUser(r.Context(), o.UserID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[owner.delete] DeleteUser(%s) error: %v", o.UserID, err)
		}
	}
	log.Printf("[owner] Deleted owner %s", o.ID)
	httputil.Success(w, http.StatusOK, "Owner deleted successfully", nil)
}

// ============================================================================
// 内部辅助
// ============================================================================

func (h *Handler) update(w http.ResponseWriter, r *http.Request, existing *model.Owner, self bool) {
	req := ownerRequest{Owner: *existing}
	if existing.BusinessInfo != nil {
		bi := *existing.BusinessInfo
		req.BusinessInfo = &bi
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "owner.update", err)
		return
	}
	o := req.Owner
	o.ID, o.UserID, o.CreatedAt = existing.ID, existing.UserID, existing.CreatedAt
	if self {
		o.Status = existing.Status
	}
	o.UpdatedAt = time.Now().UTC()
	o.Normalize()
	if err := o.Validate(); err != nil {
		httputil.FromError(w, "owner.update", err)
		return
	}

	if o.Email != existing.Email {
		if err := h.syncEmail(r, o.UserID, o.Email); err != nil {
			httputil.FromError(w, "owner.update", err)
			return
		}
	}
	if err := h.store.UpdateOwner(r.Context(), &o); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.Error(w, http.StatusConflict, "Email already in use")
			return
		}
		httputil.FromError(w, "owner.update", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Owner updated successfully", &o)
}

// syncEmail 档案邮箱变更时同步更新登录账户
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

func (h *Handler) load(w http.ResponseWriter, r *http.Request, id string) (*model.Owner, bool) {
	o, err := h.store.GetOwner(r.Context(), id)
	if err != nil {
		httputil.FromError(w, "owner.get", err)
		return nil, false
	}
	if o == nil {
		httputil.Error(w, http.StatusNotFound, "Owner not found")
		return nil, false
	}
	return o, true
}

func (h *Handler) loadOwn(w http.ResponseWriter, r *http.Request) (*model.Owner, bool) {
	user := auth.CurrentUser(r.Context())
	o, err := h.store.GetOwnerByUserID(r.Context(), user.ID)
	if err != nil {
		httputil.FromError(w, "owner.profile", err)
		return nil, false
	}
	if o == nil {
		httputil.Error(w, http.StatusNotFound, "Owner profile not found")
		return nil, false
	}
	return o, true
}
