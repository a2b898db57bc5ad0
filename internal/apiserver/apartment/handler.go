// Package apartment 房源管理
//
// 列表与详情公开访问；创建、修改、删除限房源所属房东或管理员/员工。
// 图片通过 multipart images 字段上传，JSON 文档放在 data 字段。
package apartment

import (
	"log"
	"net/http"
	"slices"
	"time"

	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/objstore"
	"rental-admin/internal/shared/storage"
)

// Store 房源处理器依赖的存储
type Store interface {
	storage.OwnerStore
	storage.ApartmentStore
}

// ImageField multipart 图片字段名
const ImageField = "images"

// ObjectPrefix 房源图片对象键前缀
const ObjectPrefix = "apartments"

// Handler 房源 HTTP 处理器
type Handler struct {
	store     Store
	objects   objstore.Store
	authn     *auth.Authenticator
	maxUpload int64
}

// NewHandler 创建房源处理器，maxUpload 为 multipart 内存上限（字节）
func NewHandler(store Store, objects objstore.Store, authn *auth.Authenticator, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handler{store: store, objects: objects, authn: authn, maxUpload: maxUpload}
}

// 路由模式；PATCH 的两个两段式路径由 patchNested 分发
const (
	patternAdminUpdate = "PATCH /api/v1/apartments/admin/{id}"
	patternRemoveImage = "PATCH /api/v1/apartments/{id}/remove-image"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	staff := []model.Role{model.RoleAdmin, model.RoleStaff}
	mux.HandleFunc("GET /api/v1/apartments", h.List)
	mux.Handle("POST /api/v1/apartments", h.authn.Authenticate()(auth.RequireRoles(model.RoleOwner)(auth.ApprovedOnly(http.HandlerFunc(h.Create)))))
	mux.Handle("GET /api/v1/apartments/admin/stats", h.authn.Protect(h.Stats, staff...))
	mux.Handle("DELETE /api/v1/apartments/admin/{id}", h.authn.Protect(h.AdminDelete, model.RoleAdmin))
	mux.Handle("GET /api/v1/apartments/owner/my-apartments", h.authn.Protect(h.MyApartments, model.RoleOwner))
	mux.HandleFunc("GET /api/v1/apartments/{id}", h.Get)
	mux.Handle("PATCH /api/v1/apartments/{id}", h.authn.Protect(h.Update, model.RoleOwner, model.RoleAdmin, model.RoleStaff))
	mux.Handle("DELETE /api/v1/apartments/{id}", h.authn.Protect(h.Delete, model.RoleOwner, model.RoleAdmin))
	// admin/{id} 与 {id}/remove-image 在 ServeMux 中互相冲突，合并为一个模式
	mux.Handle("PATCH /api/v1/apartments/{seg}/{id}", h.authn.Authenticate()(http.HandlerFunc(h.patchNested)))
}

// patchNested 分发 PATCH admin/{id} 与 PATCH {id}/remove-image
//
// 改写 r.Pattern 为真实路由，请求体校验据此定位 OpenAPI operation。
func (h *Handler) patchNested(w http.ResponseWriter, r *http.Request) {
	seg, id := r.PathValue("seg"), r.PathValue("id")
	switch {
	case seg == "admin":
		r.Pattern = patternAdminUpdate
		auth.RequireRoles(model.RoleAdmin, model.RoleStaff)(http.HandlerFunc(h.AdminUpdate)).ServeHTTP(w, r)
	case id == "remove-image":
		r.Pattern = patternRemoveImage
		r.SetPathValue("id", seg)
		auth.RequireRoles(model.RoleOwner, model.RoleAdmin, model.RoleStaff)(http.HandlerFunc(h.RemoveImage)).ServeHTTP(w, r)
	default:
		httputil.Error(w, http.StatusNotFound, "Not Found")
	}
}

// ============================================================================
// 请求体
// ============================================================================

// availabilityRequest 可租信息；availableFrom 接受日期或 RFC 3339，空串清除
type availabilityRequest struct {
	Status        model.AvailabilityStatus `json:"status"`
	AvailableFrom *string                  `json:"availableFrom"`
	LeaseTerm     *string                  `json:"leaseTerm"`
}

type apartmentRequest struct {
	model.Apartment
	Availability *availabilityRequest `json:"availability"`
}

func (req *apartmentRequest) apply(a *model.Apartment) error {
	*a = req.Apartment
	av := req.Availability
	if av == nil {
		return nil
	}
	if av.Status != "" {
		a.Availability.Status = av.Status
	}
	if av.LeaseTerm != nil {
		a.Availability.LeaseTerm = *av.LeaseTerm
	}
	if av.AvailableFrom != nil {
		if *av.AvailableFrom == "" {
			a.Availability.AvailableFrom = nil
		} else {
			from, err := httputil.ParseDate(*av.AvailableFrom)
			if err != nil {
				return err
			}
			a.Availability.AvailableFrom = &from
		}
	}
	return nil
}

// ============================================================================
// 查询
// ============================================================================

// List 公开房源搜索
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		httputil.FromError(w, "apartment.list", err)
		return
	}
	h.list(w, r, filter, "Apartments retrieved successfully")
}

// MyApartments 当前房东的房源
func (h *Handler) MyApartments(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.callerOwner(w, r, "Only property owners can access this endpoint")
	if !ok {
		return
	}
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.FromError(w, "apartment.mine", err)
		return
	}
	h.list(w, r, storage.ApartmentFilter{
		OwnerID: owner.ID,
		Status:  r.URL.Query().Get("status"),
		Sort:    storage.Sort{Field: storage.SortCreatedAt, Desc: true},
		Page:    page,
	}, "Owner apartments retrieved successfully")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter storage.ApartmentFilter, msg string) {
	apartments, total, err := h.store.ListApartments(r.Context(), filter)
	if err != nil {
		httputil.FromError(w, "apartment.list", err)
		return
	}
	httputil.Success(w, http.StatusOK, msg, httputil.List("apartments", apartments, filter.Page, total))
}

func listFilter(r *http.Request) (storage.ApartmentFilter, error) {
	q := r.URL.Query()
	f := storage.ApartmentFilter{
		Status:       q.Get("status"),
		Availability: q.Get("availability"),
		City:         q.Get("city"),
		State:        q.Get("state"),
		Search:       q.Get("search"),
	}
	var err error
	if f.Page, err = httputil.PageParams(r); err != nil {
		return f, err
	}
	if f.Sort, err = httputil.SortParams(r, storage.ValidApartmentSort); err != nil {
		return f, err
	}
	for name, dest := range map[string]any{
		"minRent":   &f.MinRent,
		"maxRent":   &f.MaxRent,
		"bedrooms":  &f.Bedrooms,
		"bathrooms": &f.Bathrooms,
	} {
		if err := httputil.BindQuery(r, name, dest); err != nil {
			return f, err
		}
	}
	return f, nil
}

// Get 公开房源详情
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	apt, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.Success(w, http.StatusOK, "Apartment retrieved successfully", apt)
}

// Stats 房源统计
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.ApartmentStats(r.Context())
	if err != nil {
		httputil.FromError(w, "apartment.stats", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Apartment statistics retrieved successfully", stats)
}

// ============================================================================
// 写操作
// ============================================================================

// Create 房东发布房源
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.callerOwner(w, r, "Only property owners can create apartments")
	if !ok {
		return
	}
	var req apartmentRequest
	form, err := httputil.DecodeForm(r, h.maxUpload, &req)
	if err != nil {
		httputil.FromError(w, "apartment.create", err)
		return
	}
	var apt model.Apartment
	if err := req.apply(&apt); err != nil {
		httputil.FromError(w, "apartment.create", err)
		return
	}
	now := time.Now().UTC()
	apt.ID = model.NewID("apt")
	apt.OwnerID = owner.ID
	apt.CreatedAt, apt.UpdatedAt = now, now
	apt.Normalize()

	files := httputil.Files(form, ImageField)
	if len(apt.Images)+len(files) > model.MaxImages {
		httputil.Error(w, http.StatusBadRequest, "cannot have more than 20 images")
		return
	}
	if err := apt.Validate(); err != nil {
		httputil.FromError(w, "apartment.create", err)
		return
	}
	urls, err := httputil.SaveFiles(r.Context(), h.objects, ObjectPrefix, files, true)
	if err != nil {
		httputil.FromError(w, "apartment.create", err)
		return
	}
	apt.Images = append(apt.Images, urls...)

	if err := h.store.CreateApartment(r.Context(), &apt); err != nil {
		httputil.FromError(w, "apartment.create", err)
		return
	}
	log.Printf("[apartment] Created apartment %s for owner %s (%d images)", apt.ID, owner.ID, len(apt.Images))
	httputil.Success(w, http.StatusCreated, "Apartment created successfully", &apt)
}

// Update 房东或管理员/员工修改房源，新上传的图片追加在已有图片之后
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	apt, ok := h.loadForWrite(w, r, "You can only update your own apartments", true)
	if !ok {
		return
	}
	h.update(w, r, apt)
}

// AdminUpdate 管理员/员工修改任意房源
func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	apt, ok := h.load(w, r)
	if !ok {
		return
	}
	h.update(w, r, apt)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, existing *model.Apartment) {
	req := apartmentRequest{Apartment: *existing}
	form, err := httputil.DecodeForm(r, h.maxUpload, &req)
	if err != nil {
		httputil.FromError(w, "apartment.update", err)
		return
	}
	var apt model.Apartment
	if err := req.apply(&apt); err != nil {
		httputil.FromError(w, "apartment.update", err)
		return
	}
	apt.ID, apt.OwnerID, apt.CreatedAt = existing.ID, existing.OwnerID, existing.CreatedAt
	apt.Images = slices.Clone(existing.Images)
	apt.UpdatedAt = time.Now().UTC()
	apt.Normalize()

	files := httputil.Files(form, ImageField)
	if len(apt.Images)+len(files) > model.MaxImages {
		httputil.Error(w, http.StatusBadRequest, "cannot have more than 20 images")
		return
	}
	if err := apt.Validate(); err != nil {
		httputil.FromError(w, "apartment.update", err)
		return
	}
	urls, err := httputil.SaveFiles(r.Context(), h.objects, ObjectPrefix, files, true)
	if err != nil {
		httputil.FromError(w, "apartment.update", err)
		return
	}
	apt.Images = append(apt.Images, urls...)

	if err := h.store.UpdateApartment(r.Context(), &apt); err != nil {
		httputil.FromError(w, "apartment.update", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Apartment updated successfully", &apt)
}

// Delete 房东或管理员删除房源，立即生效
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	apt, ok := h.loadForWrite(w, r, "You can only delete your own apartments", false)
	if !ok {
		return
	}
	h.delete(w, r, apt)
}

// AdminDelete 管理员删除任意房源
func (h *Handler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	apt, ok := h.load(w, r)
	if !ok {
		return
	}
	h.delete(w, r, apt)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, apt *model.Apartment) {
	if err := h.store.DeleteApartment(r.Context(), apt.ID); err != nil {
		httputil.FromError(w, "apartment.delete", err)
		return
	}
	log.Printf("[apartment] Deleted apartment %s", apt.ID)
	httputil.Success(w, http.StatusOK, "Apartment deleted successfully", nil)
}

type removeImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

// RemoveImage 从房源移除一张图片，对象存储删除失败只记录日志
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	apt, ok := h.loadForWrite(w, r, "You can only modify your own apartments", true)
	if !ok {
		return
	}
	var req removeImageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "apartment.remove_image", err)
		return
	}
	idx := slices.Index(apt.Images, req.ImageURL)
	if idx < 0 {
		httputil.Error(w, http.StatusNotFound, "Image not found")
		return
	}
	if err := h.objects.Delete(r.Context(), req.ImageURL); err != nil {
		log.Printf("[apartment] delete object %s failed: %v", req.ImageURL, err)
	}
	apt.Images = slices.Delete(apt.Images, idx, idx+1)
	apt.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateApartment(r.Context(), apt); err != nil {
		httputil.FromError(w, "apartment.remove_image", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Image removed successfully", apt)
}

// ============================================================================
// 内部辅助
// ============================================================================

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Apartment, bool) {
	apt, err := h.store.GetApartment(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.FromError(w, "apartment.get", err)
		return nil, false
	}
	if apt == nil {
		httputil.Error(w, http.StatusNotFound, "Apartment not found")
		return nil, false
	}
	return apt, true
}

// loadForWrite 加载房源并确认调用者是所属房东；管理员总是放行，staffOK 时员工也放行
func (h *Handler) loadForWrite(w http.ResponseWriter, r *http.Request, denied string, staffOK bool) (*model.Apartment, bool) {
	apt, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	user := auth.CurrentUser(r.Context())
	if user.IsAdmin() || (staffOK && user.IsStaff()) {
		return apt, true
	}
	owner, err := h.store.GetOwnerByUserID(r.Context(), user.ID)
	if err != nil {
		httputil.FromError(w, "apartment.owner", err)
		return nil, false
	}
	if owner == nil || owner.ID != apt.OwnerID {
		httputil.Error(w, http.StatusForbidden, denied)
		return nil, false
	}
	return apt, true
}

// callerOwner 当前用户的房东档案，没有档案时返回 403
func (h *Handler) callerOwner(w http.ResponseWriter, r *http.Request, denied string) (*model.Owner, bool) {
	user := auth.CurrentUser(r.Context())
	owner, err := h.store.GetOwnerByUserID(r.Context(), user.ID)
	if err != nil {
		httputil.FromError(w, "apartment.owner", err)
		return nil, false
	}
	if owner == nil {
		httputil.Error(w, http.StatusForbidden, denied)
		return nil, false
	}
	return owner, true
}
