package model

import (
	"encoding/json"
	"math"
	"time"
)

// ApplicationStatus 租赁申请状态
//
// 状态流转：
//
//	pending ──> under_review ──> approved | rejected
//	pending ──> approved | rejected      （直接审核）
//	pending ──> withdrawn                （租客撤回）
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)

// ApplicationStatuses 全部申请状态（统计用）
var ApplicationStatuses = []ApplicationStatus{
	ApplicationPending, ApplicationUnderReview, ApplicationApproved, ApplicationRejected, ApplicationWithdrawn,
}

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:     {ApplicationUnderReview, ApplicationApproved, ApplicationRejected, ApplicationWithdrawn},
	ApplicationUnderReview: {ApplicationApproved, ApplicationRejected},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to ApplicationStatus) bool {
	return contains(applicationTransitions[from], to)
}

// IsBlocking 该状态是否阻止同一租客对同一房源再次申请
func (s ApplicationStatus) IsBlocking() bool {
	switch s {
	case ApplicationPending, ApplicationUnderReview, ApplicationApproved:
		return true
	}
	return false
}

// IsTerminal 是否为终态（不可再编辑）
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case ApplicationApproved, ApplicationRejected, ApplicationWithdrawn:
		return true
	}
	return false
}

// IsReviewOutcome 是否为审核可设置的目标状态
func (s ApplicationStatus) IsReviewOutcome() bool {
	switch s {
	case ApplicationUnderReview, ApplicationApproved, ApplicationRejected:
		return true
	}
	return false
}

// LeaseTerms 可选租期
var LeaseTerms = []string{"6 months", "1 year", "18 months", "2 years", "month-to-month"}

// EmploymentStatuses 可选就业状态
var EmploymentStatuses = []string{"employed", "self-employed", "unemployed", "student", "retired"}

// 申请限制
const (
	MaxAdditionalInfoLength = 1000
	MaxReviewNotesLength    = 2000
	MaxReferenceDocuments   = 5
)

// ApplicationDetails 申请详情
type ApplicationDetails struct {
	MoveInDate       time.Time `json:"moveInDate" bson:"move_in_date"`
	LeaseTerm        string    `json:"leaseTerm" bson:"lease_term"`
	MonthlyIncome    float64   `json:"monthlyIncome" bson:"monthly_income"`
	EmploymentStatus string    `json:"employmentStatus" bson:"employment_status"`
	EmployerName     string    `json:"employerName,omitempty" bson:"employer_name,omitempty"`
	EmployerPhone    string    `json:"employerPhone,omitempty" bson:"employer_phone,omitempty"`
	AdditionalInfo   string    `json:"additionalInfo,omitempty" bson:"additional_info,omitempty"`
}

// Documents 申请附件（对象存储 URL）
type Documents struct {
	IDProof       string   `json:"idProof,omitempty" bson:"id_proof,omitempty"`
	IncomeProof   string   `json:"incomeProof,omitempty" bson:"income_proof,omitempty"`
	BankStatement string   `json:"bankStatement,omitempty" bson:"bank_statement,omitempty"`
	References    []string `json:"references,omitempty" bson:"references,omitempty"`
}

// Application 租赁申请
//
// Blocking 由存储层在每次写入时根据 Status 维护，
// (tenant_id, apartment_id) 在 blocking=true 上建有部分唯一索引。
type Application struct {
	ID                 string             `json:"id" bson:"_id"`
	TenantID           string             `json:"tenantId" bson:"tenant_id"`
	ApartmentID        string             `json:"apartmentId" bson:"apartment_id"`
	ApplicationDetails ApplicationDetails `json:"applicationDetails" bson:"application_details"`
	Status             ApplicationStatus  `json:"status" bson:"status"`
	Blocking           bool               `json:"-" bson:"blocking"`
	ReviewNotes        string             `json:"reviewNotes,omitempty" bson:"review_notes,omitempty"`
	ReviewedBy         string             `json:"reviewedBy,omitempty" bson:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time         `json:"reviewedAt,omitempty" bson:"reviewed_at,omitempty"`
	Documents          Documents          `json:"documents" bson:"documents"`
	CreatedAt          time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updated_at"`

	// Apartment 查询时可选附带的房源（不持久化），用于计算收入租金比
	Apartment *Apartment `json:"apartment,omitempty" bson:"-"`
}

// SyncBlocking 根据状态刷新 Blocking 标记
func (a *Application) SyncBlocking() {
	a.Blocking = a.Status.IsBlocking()
}

// AgeInDays 申请提交后经过的整天数
func (a *Application) AgeInDays(now time.Time) int {
	return int(now.Sub(a.CreatedAt).Hours() / 24)
}

// IncomeToRentRatio 月收入与月租之比，房源未加载或租金为 0 时返回 0
func (a *Application) IncomeToRentRatio() float64 {
	if a.Apartment == nil {
		return 0
	}
	rent := a.Apartment.MonthlyRent()
	if rent <= 0 {
		return 0
	}
	return math.Round(a.ApplicationDetails.MonthlyIncome/rent*100) / 100
}

// Validate 校验申请字段
//
// 入住日期须晚于 now；传零值跳过该检查（如更新时日期未变）。
func (a *Application) Validate(now time.Time) error {
	switch {
	case a.TenantID == "":
		return invalid("tenantId", "tenant is required")
	case a.ApartmentID == "":
		return invalid("apartmentId", "apartment is required")
	}
	d := a.ApplicationDetails
	switch {
	case d.MoveInDate.IsZero():
		return invalid("applicationDetails.moveInDate", "move-in date is required")
	case !d.MoveInDate.After(now):
		return invalid("applicationDetails.moveInDate", "move-in date must be in the future")
	case !contains(LeaseTerms, d.LeaseTerm):
		return invalid("applicationDetails.leaseTerm", "lease term must be one of %v", LeaseTerms)
	case d.MonthlyIncome < 0:
		return invalid("applicationDetails.monthlyIncome", "monthly income cannot be negative")
	case !contains(EmploymentStatuses, d.EmploymentStatus):
		return invalid("applicationDetails.employmentStatus", "employment status must be one of %v", EmploymentStatuses)
	case len(d.AdditionalInfo) > MaxAdditionalInfoLength:
		return invalid("applicationDetails.additionalInfo", "additional info cannot exceed %d characters", MaxAdditionalInfoLength)
	case len(a.ReviewNotes) > MaxReviewNotesLength:
		return invalid("reviewNotes", "review notes cannot exceed %d characters", MaxReviewNotesLength)
	case len(a.Documents.References) > MaxReferenceDocuments:
		return invalid("documents.references", "at most %d reference documents", MaxReferenceDocuments)
	}
	return nil
}

// MarshalJSON 附带 ageInDays / incomeToRentRatio 派生字段
func (a Application) MarshalJSON() ([]byte, error) {
	type alias Application
	out := struct {
		alias
		AgeInDays         int     `json:"ageInDays"`
		IncomeToRentRatio float64 `json:"incomeToRentRatio,omitempty"`
	}{alias: alias(a), AgeInDays: a.AgeInDays(time.Now()), IncomeToRentRatio: a.IncomeToRentRatio()}
	return json.Marshal(out)
}
