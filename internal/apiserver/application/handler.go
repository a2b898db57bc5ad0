// Package application 租赁申请流转
//
// 状态机见 model.ApplicationStatus。同一 (租客, 房源) 的唯一性由存储层的
// blocking 部分唯一索引保证，处理器的预检查只用于给出友好错误。
package application

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/objstore"
	"rental-admin/internal/shared/storage"
	"rental-admin/pkg/logging"
)

// Store 申请处理器依赖的存储
type Store interface {
	storage.OwnerStore
	storage.TenantStore
	storage.ApartmentStore
	storage.ApplicationStore
}

// Recorder 记录申请状态流转（由 server.Metrics 实现）
type Recorder interface {
	ApplicationTransition(status string)
}

type nopRecorder struct{}

func (nopRecorder) ApplicationTransition(string) {}

// 附件字段
const (
	FieldIDProof       = "idProof"
	FieldIncomeProof   = "incomeProof"
	FieldBankStatement = "bankStatement"
	FieldReferences    = "references"

	ObjectPrefix = "applications"
)

const duplicateMessage = "You already have a pending or approved application for this apartment"

// Deps 处理器依赖
type Deps struct {
	Store     Store
	Objects   objstore.Store
	Events    eventbus.EventBus
	Authn     *auth.Authenticator
	Logger    *logging.Logger
	Metrics   Recorder
	MaxUpload int64
}

// Handler 申请 HTTP 处理器
type Handler struct {
	store     Store
	objects   objstore.Store
	events    eventbus.EventBus
	authn     *auth.Authenticator
	logger    *logging.Logger
	metrics   Recorder
	maxUpload int64
}

// NewHandler 创建申请处理器
func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:     d.Store,
		objects:   d.Objects,
		events:    d.Events,
		authn:     d.Authn,
		logger:    d.Logger,
		metrics:   d.Metrics,
		maxUpload: d.MaxUpload,
	}
	if h.logger == nil {
		h.logger = logging.Default("application")
	}
	if h.metrics == nil {
		h.metrics = nopRecorder{}
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}
	return h
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	staff := []model.Role{model.RoleAdmin, model.RoleStaff}
	mux.Handle("POST /api/v1/applications", h.authn.Authenticate()(auth.RequireRoles(model.RoleTenant)(auth.ApprovedOnly(http.HandlerFunc(h.Create)))))
	mux.Handle("GET /api/v1/applications", h.authn.Protect(h.List, staff...))
	mux.Handle("GET /api/v1/applications/my-applications", h.authn.Protect(h.MyApplications, model.RoleTenant))
	mux.Handle("GET /api/v1/applications/owner/my-apartments-applications", h.authn.Protect(h.OwnerApplications, model.RoleOwner))
	mux.Handle("GET /api/v1/applications/admin/stats", h.authn.Protect(h.Stats, staff...))
	mux.Handle("DELETE /api/v1/applications/admin/{id}", h.authn.Protect(h.AdminDelete, model.RoleAdmin))
	mux.Handle("PATCH /api/v1/applications/admin/{id}/review", h.authn.Protect(h.AdminReview, staff...))
	mux.Handle("GET /api/v1/applications/{id}", h.authn.Protect(h.Get))
	mux.Handle("PUT /api/v1/applications/{id}", h.authn.Protect(h.Update, model.RoleTenant))
	mux.Handle("DELETE /api/v1/applications/{id}", h.authn.Protect(h.Delete, model.RoleTenant, model.RoleAdmin))
	mux.Handle("PATCH /api/v1/applications/{id}/review", h.authn.Protect(h.Review, model.RoleOwner))
	mux.Handle("PATCH /api/v1/applications/{id}/withdraw", h.authn.Protect(h.Withdraw, model.RoleTenant))
}

// ============================================================================
// 请求体
// ============================================================================

// detailsRequest moveInDate 接受 YYYY-MM-DD 或 RFC 3339
type detailsRequest struct {
	model.ApplicationDetails
	MoveInDate string `json:"moveInDate"`
}

func newDetailsRequest(d model.ApplicationDetails) detailsRequest {
	req := detailsRequest{ApplicationDetails: d}
	if !d.MoveInDate.IsZero() {
		req.MoveInDate = d.MoveInDate.Format(time.RFC3339)
	}
	return req
}

func (req detailsRequest) details() (model.ApplicationDetails, error) {
	d := req.ApplicationDetails
	d.MoveInDate = time.Time{}
	if req.MoveInDate != "" {
		t, err := httputil.ParseDate(req.MoveInDate)
		if err != nil {
			return d, err
		}
		d.MoveInDate = t
	}
	return d, nil
}

type createRequest struct {
	ApartmentID        string         `json:"apartmentId"`
	ApplicationDetails detailsRequest `json:"applicationDetails"`
}

type updateRequest struct {
	ApplicationDetails detailsRequest `json:"applicationDetails"`
}

type reviewRequest struct {
	Status      model.ApplicationStatus `json:"status"`
	ReviewNotes string                  `json:"reviewNotes"`
}

// ============================================================================
// 租客操作
// ============================================================================

// Create 租客提交申请
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.callerTenant(w, r, "Only tenants can create applications")
	if !ok {
		return
	}
	var req createRequest
	form, err := httputil.DecodeForm(r, h.maxUpload, &req)
	if err != nil {
		httputil.FromError(w, "application.create", err)
		return
	}
	details, err := req.ApplicationDetails.details()
	if err != nil {
		httputil.FromError(w, "application.create", err)
		return
	}

	apt, err := h.store.GetApartment(ctx, req.ApartmentID)
	if err != nil {
		httputil.FromError(w, "application.create", err)
		return
	}
	if apt == nil {
		httputil.Error(w, http.StatusNotFound, "Apartment not found")
		return
	}
	if apt.Availability.Status != model.AvailabilityAvailable {
		httputil.Error(w, http.StatusBadRequest, "Apartment is not available for applications")
		return
	}
	if apt.Status != model.ApartmentStatusActive {
		httputil.Error(w, http.StatusBadRequest, "Apartment is not active")
		return
	}
	existing, err := h.store.FindBlockingApplication(ctx, tenant.ID, apt.ID)
	if err != nil {
		httputil.FromError(w, "application.create", err)
		return
	}
	if existing != nil {
		httputil.Error(w, http.StatusConflict, duplicateMessage)
		return
	}

	now := time.Now().UTC()
	app := &model.Application{
		ID:                 model.NewID("app"),
		TenantID:           tenant.ID,
		ApartmentID:        apt.ID,
		ApplicationDetails: details,
		Status:             model.ApplicationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := app.Validate(now); err != nil {
		httputil.FromError(w, "application.create", err)
		return
	}
	if err := h.attachDocuments(ctx, app, form); err != nil {
		httputil.FromError(w, "application.create", err)
		return
	}
	if err := h.store.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.Error(w, http.StatusConflict, duplicateMessage)
			return
		}
		httputil.FromError(w, "application.create", err)
		return
	}

	app.Apartment = apt
	h.transitioned(ctx, app, "created", eventbus.EventApplicationCreated, h.audience(ctx, tenant.UserID, apt))
	httputil.Success(w, http.StatusCreated, "Application submitted successfully", app)
}

// Update 租客修改自己的待处理申请
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadOwnPending(w, r, "You can only update your own applications", "You can only update pending applications")
	if !ok {
		return
	}
	req := updateRequest{ApplicationDetails: newDetailsRequest(app.ApplicationDetails)}
	form, err := httputil.DecodeForm(r, h.maxUpload, &req)
	if err != nil {
		httputil.FromError(w, "application.update", err)
		return
	}
	details, err := req.ApplicationDetails.details()
	if err != nil {
		httputil.FromError(w, "application.update", err)
		return
	}
	now := time.Now().UTC()
	// 入住日期未改动时不再要求其在未来
	since := now
	if details.MoveInDate.Truncate(time.Second).Equal(app.ApplicationDetails.MoveInDate.Truncate(time.Second)) {
		since = time.Time{}
	}
	app.ApplicationDetails = details
	app.UpdatedAt = now
	if err := app.Validate(since); err != nil {
		httputil.FromError(w, "application.update", err)
		return
	}
	if err := h.attachDocuments(r.Context(), app, form); err != nil {
		httputil.FromError(w, "application.update", err)
		return
	}
	if err := h.store.UpdateApplication(r.Context(), app); err != nil {
		httputil.FromError(w, "application.update", err)
		return
	}
	h.withApartment(r.Context(), app)
	httputil.Success(w, http.StatusOK, "Application updated successfully", app)
}

// Withdraw 租客撤回待处理申请
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadOwnPending(w, r, "You can only withdraw your own applications", "You can only withdraw pending applications")
	if !ok {
		return
	}
	app.Status = model.ApplicationWithdrawn
	app.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateApplication(r.Context(), app); err != nil {
		httputil.FromError(w, "application.withdraw", err)
		return
	}
	apt := h.withApartment(r.Context(), app)
	user := auth.CurrentUser(r.Context())
	h.transitioned(r.Context(), app, "withdrawn", eventbus.EventApplicationWithdrawn, h.audience(r.Context(), user.ID, apt))
	httputil.Success(w, http.StatusOK, "Application withdrawn successfully", app)
}

// Delete 租客删除自己的待处理申请；管理员可删除任意申请
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if auth.CurrentUser(r.Context()).IsAdmin() {
		h.AdminDelete(w, r)
		return
	}
	app, ok := h.loadOwnPending(w, r, "You can only delete your own applications", "You can only delete pending applications")
	if !ok {
		return
	}
	h.delete(w, r, app)
}

// AdminDelete 管理员删除任意申请
func (h *Handler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	app, ok := h.load(w, r)
	if !ok {
		return
	}
	h.delete(w, r, app)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, app *model.Application) {
	if err := h.store.DeleteApplication(r.Context(), app.ID); err != nil {
		httputil.FromError(w, "application.delete", err)
		return
	}
	h.logger.WithContext(r.Context()).WorkflowLog("deleted", app.ID, slog.String("status", string(app.Status)))
	httputil.Success(w, http.StatusOK, "Application deleted successfully", nil)
}

// ============================================================================
// 审核
// ============================================================================

// Review 房东审核自己房源上的申请
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, false)
}

// AdminReview 管理员/员工审核任意申请
func (h *Handler) AdminReview(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, true)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, asStaff bool) {
	ctx := r.Context()
	user := auth.CurrentUser(ctx)
	app, ok := h.load(w, r)
	if !ok {
		return
	}
	apt, err := h.store.GetApartment(ctx, app.ApartmentID)
	if err != nil {
		httputil.FromError(w, "application.review", err)
		return
	}

	var owner *model.Owner
	if apt != nil {
		if owner, err = h.store.GetOwner(ctx, apt.OwnerID); err != nil {
			httputil.FromError(w, "application.review", err)
			return
		}
	}
	if !asStaff && !user.IsSuperAdmin() && (owner == nil || owner.UserID != user.ID) {
		httputil.Error(w, http.StatusForbidden, "You don't have permission to review this application")
		return
	}

	var req reviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.FromError(w, "application.review", err)
		return
	}
	if !req.Status.IsReviewOutcome() {
		httputil.Error(w, http.StatusBadRequest, "Invalid review status")
		return
	}
	if !model.CanTransition(app.Status, req.Status) {
		httputil.Error(w, http.StatusBadRequest, "Cannot change application status from "+string(app.Status)+" to "+string(req.Status))
		return
	}
	if req.Status == model.ApplicationApproved && apt == nil {
		httputil.Error(w, http.StatusNotFound, "Apartment not found")
		return
	}

	now := time.Now().UTC()
	app.Status = req.Status
	app.ReviewNotes = req.ReviewNotes
	app.ReviewedBy = user.ID
	app.ReviewedAt = &now
	app.UpdatedAt = now
	if err := app.Validate(time.Time{}); err != nil {
		httputil.FromError(w, "application.review", err)
		return
	}
	if err := h.store.UpdateApplication(ctx, app); err != nil {
		httputil.FromError(w, "application.review", err)
		return
	}

	tenantUser := h.tenantUserID(ctx, app.TenantID)
	audience := h.audience(ctx, tenantUser, apt)
	if req.Status == model.ApplicationApproved {
		if err := h.store.UpdateApartmentAvailability(ctx, apt.ID, model.AvailabilityRented); err != nil {
			httputil.FromError(w, "application.review", err)
			return
		}
		apt.Availability.Status = model.AvailabilityRented
		eventbus.Emit(ctx, h.events, &eventbus.Event{
			Type:     eventbus.EventApartmentRented,
			Audience: audience,
			Data:     map[string]any{"apartmentId": apt.ID, "applicationId": app.ID},
		})
	}
	app.Apartment = apt
	h.transitioned(ctx, app, "reviewed", eventbus.EventApplicationReviewed, audience)
	httputil.Success(w, http.StatusOK, "Application reviewed successfully", app)
}

// ============================================================================
// 查询
// ============================================================================

// Get 申请详情：申请人、房源所属房东与管理员/员工可见
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := h.load(w, r)
	if !ok {
		return
	}
	apt := h.withApartment(ctx, app)
	user := auth.CurrentUser(ctx)
	if !user.IsStaff() && !h.isApplicant(ctx, user.ID, app) && !h.ownsApartment(ctx, user.ID, apt) {
		httputil.Error(w, http.StatusForbidden, "You don't have permission to view this application")
		return
	}
	httputil.Success(w, http.StatusOK, "Application retrieved successfully", app)
}

// List 管理员/员工查询全部申请
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ApplicationFilter{
		Status:      q.Get("status"),
		ApartmentID: q.Get("apartmentId"),
		TenantID:    q.Get("tenantId"),
	}
	var err error
	if filter.Sort, err = httputil.SortParams(r, storage.ValidApplicationSort); err != nil {
		httputil.FromError(w, "application.list", err)
		return
	}
	h.list(w, r, filter, "Applications retrieved successfully")
}

// MyApplications 当前租客的申请
func (h *Handler) MyApplications(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.callerTenant(w, r, "Only tenants can access this endpoint")
	if !ok {
		return
	}
	h.list(w, r, storage.ApplicationFilter{
		TenantID: tenant.ID,
		Status:   r.URL.Query().Get("status"),
		Sort:     storage.Sort{Field: storage.SortCreatedAt, Desc: true},
	}, "Tenant applications retrieved successfully")
}

// OwnerApplications 当前房东名下房源收到的申请
func (h *Handler) OwnerApplications(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	owner, err := h.store.GetOwnerByUserID(r.Context(), user.ID)
	if err != nil {
		httputil.FromError(w, "application.owner", err)
		return
	}
	if owner == nil {
		httputil.Error(w, http.StatusForbidden, "Only property owners can access this endpoint")
		return
	}
	ids, err := h.store.ListApartmentIDsByOwner(r.Context(), owner.ID)
	if err != nil {
		httputil.FromError(w, "application.owner", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.list(w, r, storage.ApplicationFilter{
		ApartmentIDs: ids,
		Status:       r.URL.Query().Get("status"),
		Sort:         storage.Sort{Field: storage.SortCreatedAt, Desc: true},
	}, "Owner applications retrieved successfully")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter storage.ApplicationFilter, msg string) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.FromError(w, "application.list", err)
		return
	}
	filter.Page = page
	apps, total, err := h.store.ListApplications(r.Context(), filter)
	if err != nil {
		httputil.FromError(w, "application.list", err)
		return
	}
	cache := make(map[string]*model.Apartment)
	for _, app := range apps {
		apt, seen := cache[app.ApartmentID]
		if !seen {
			apt = h.withApartment(r.Context(), app)
			cache[app.ApartmentID] = apt
		}
		app.Apartment = apt
	}
	httputil.Success(w, http.StatusOK, msg, httputil.List("applications", apps, page, total))
}

// statsMonths 统计最近几个月的新增申请
const statsMonths = 6

// Stats 申请统计
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().AddDate(0, -statsMonths, 0)
	stats, err := h.store.ApplicationStats(r.Context(), since)
	if err != nil {
		httputil.FromError(w, "application.stats", err)
		return
	}
	httputil.Success(w, http.StatusOK, "Application statistics retrieved successfully", map[string]any{
		"total":        stats.Total,
		"pending":      stats.ByStatus[string(model.ApplicationPending)],
		"underReview":  stats.ByStatus[string(model.ApplicationUnderReview)],
		"approved":     stats.ByStatus[string(model.ApplicationApproved)],
		"rejected":     stats.ByStatus[string(model.ApplicationRejected)],
		"withdrawn":    stats.ByStatus[string(model.ApplicationWithdrawn)],
		"monthlyStats": stats.Monthly,
	})
}

// ============================================================================
// 内部辅助
// ============================================================================

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Application, bool) {
	app, err := h.store.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.FromError(w, "application.get", err)
		return nil, false
	}
	if app == nil {
		httputil.Error(w, http.StatusNotFound, "Application not found")
		return nil, false
	}
	return app, true
}

// loadOwnPending 加载申请并要求调用者为申请人（否则 403）且申请处于 pending（否则 400）
func (h *Handler) loadOwnPending(w http.ResponseWriter, r *http.Request, notOwner, notPending string) (*model.Application, bool) {
	app, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	if !h.isApplicant(r.Context(), auth.CurrentUser(r.Context()).ID, app) {
		httputil.Error(w, http.StatusForbidden, notOwner)
		return nil, false
	}
	if app.Status != model.ApplicationPending {
		httputil.Error(w, http.StatusBadRequest, notPending)
		return nil, false
	}
	return app, true
}

func (h *Handler) callerTenant(w http.ResponseWriter, r *http.Request, denied string) (*model.Tenant, bool) {
	user := auth.CurrentUser(r.Context())
	tenant, err := h.store.GetTenantByUserID(r.Context(), user.ID)
	if err != nil {
		httputil.FromError(w, "application.tenant", err)
		return nil, false
	}
	if tenant == nil {
		httputil.Error(w, http.StatusForbidden, denied)
		return nil, false
	}
	return tenant, true
}

func (h *Handler) isApplicant(ctx context.Context, userID string, app *model.Application) bool {
	tenant, err := h.store.GetTenantByUserID(ctx, userID)
	if err != nil {
		log.Printf("[application] GetTenantByUserID(%s) error: %v", userID, err)
		return false
	}
	return tenant != nil && tenant.ID == app.TenantID
}

func (h *Handler) ownsApartment(ctx context.Context, userID string, apt *model.Apartment) bool {
	if apt == nil {
		return false
	}
	owner, err := h.store.GetOwnerByUserID(ctx, userID)
	if err != nil {
		log.Printf("[application] GetOwnerByUserID(%s) error: %v", userID, err)
		return false
	}
	return owner != nil && owner.ID == apt.OwnerID
}

// withApartment 加载并附带申请的房源，房源已删除时返回 nil
func (h *Handler) withApartment(ctx context.Context, app *model.Application) *model.Apartment {
	apt, err := h.store.GetApartment(ctx, app.ApartmentID)
	if err != nil {
		log.Printf("[application] GetApartment(%s) error: %v", app.ApartmentID, err)
		return nil
	}
	app.Apartment = apt
	return apt
}

func (h *Handler) tenantUserID(ctx context.Context, tenantID string) string {
	tenant, err := h.store.GetTenant(ctx, tenantID)
	if err != nil || tenant == nil {
		return ""
	}
	return tenant.UserID
}

// audience 事件接收人：申请人与房源所属房东的用户 ID
func (h *Handler) audience(ctx context.Context, tenantUserID string, apt *model.Apartment) []string {
	var ids []string
	if tenantUserID != "" {
		ids = append(ids, tenantUserID)
	}
	if apt != nil {
		if owner, err := h.store.GetOwner(ctx, apt.OwnerID); err == nil && owner != nil && owner.UserID != "" {
			ids = append(ids, owner.UserID)
		}
	}
	return ids
}

// transitioned 记录流转日志、指标并发布事件
func (h *Handler) transitioned(ctx context.Context, app *model.Application, action, eventType string, audience []string) {
	h.logger.WithContext(ctx).WorkflowLog(action, app.ID,
		slog.String("status", string(app.Status)),
		slog.String("apartment_id", app.ApartmentID),
		slog.String("tenant_id", app.TenantID),
	)
	h.metrics.ApplicationTransition(string(app.Status))
	eventbus.Emit(ctx, h.events, &eventbus.Event{
		Type:     eventType,
		Audience: audience,
		Data: map[string]any{
			"applicationId": app.ID,
			"apartmentId":   app.ApartmentID,
			"status":        string(app.Status),
		},
	})
}

// attachDocuments 上传 multipart 附件；单文件字段覆盖旧值，references 追加
func (h *Handler) attachDocuments(ctx context.Context, app *model.Application, form *multipart.Form) error {
	if form == nil {
		return nil
	}
	refs := httputil.Files(form, FieldReferences)
	if len(app.Documents.References)+len(refs) > model.MaxReferenceDocuments {
		return httputil.NewError(http.StatusBadRequest, "at most %d reference documents", model.MaxReferenceDocuments)
	}
	for field, dest := range map[string]*string{
		FieldIDProof:       &app.Documents.IDProof,
		FieldIncomeProof:   &app.Documents.IncomeProof,
		FieldBankStatement: &app.Documents.BankStatement,
	} {
		files := httputil.Files(form, field)
		if len(files) == 0 {
			continue
		}
		url, err := httputil.SaveFile(ctx, h.objects, ObjectPrefix, files[0])
		if err != nil {
			return err
		}
		*dest = url
	}
	urls, err := httputil.SaveFiles(ctx, h.objects, ObjectPrefix, refs, false)
	if err != nil {
		return err
	}
	app.Documents.References = append(app.Documents.References, urls...)
	return nil
}
