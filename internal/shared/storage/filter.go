package storage

import "time"

// ============================================================================
// 分页与排序
// ============================================================================

// 分页默认值
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page 分页参数（页码从 1 开始）
type Page struct {
	Page  int
	Limit int
}

// Normalize 修正非法分页参数
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset 跳过的记录数
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination 分页响应
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination 根据分页参数与总数构造分页响应
func NewPagination(p Page, total int64) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

// Sort 排序
//
// Field 使用 API 层的逻辑字段名（如 "createdAt"、"rent.amount"），
// 各驱动负责映射为实际列名并拒绝未知字段。
type Sort struct {
	Field string
	Desc  bool
}

// 可排序字段
const (
	SortCreatedAt  = "createdAt"
	SortUpdatedAt  = "updatedAt"
	SortRentAmount = "rent.amount"
	SortTitle      = "title"
	SortBedrooms   = "propertyDetails.bedrooms"
)

// ValidApartmentSort 房源列表允许的排序字段
func ValidApartmentSort(field string) bool {
	switch field {
	case SortCreatedAt, SortUpdatedAt, SortRentAmount, SortTitle, SortBedrooms:
		return true
	}
	return false
}

// ValidApplicationSort 申请列表允许的排序字段
func ValidApplicationSort(field string) bool {
	return field == SortCreatedAt || field == SortUpdatedAt
}

// ============================================================================
// 查询过滤
// ============================================================================

// ApartmentFilter 房源查询条件
//
// City / State / Search 为大小写不敏感的子串匹配。
type ApartmentFilter struct {
	OwnerID      string
	Status       string
	Availability string
	City         string
	State        string
	MinRent      *float64
	MaxRent      *float64
	Bedrooms     *int
	Bathrooms    *int
	Search       string
	Sort         Sort
	Page         Page
}

// ApplicationFilter 申请查询条件
//
// ApartmentIDs 非 nil 时限定在这些房源内（房东查看自己房源的申请）。
type ApplicationFilter struct {
	TenantID     string
	ApartmentID  string
	ApartmentIDs []string
	Status       string
	Sort         Sort
	Page         Page
}

// ProfileFilter 房东/租客档案查询条件
//
// Search 匹配 firstName / lastName / email（房东额外匹配 businessName）。
type ProfileFilter struct {
	Search string
	Status string
	Page   Page
}

// ============================================================================
// 统计
// ============================================================================

// ApartmentStats 房源统计
type ApartmentStats struct {
	Total       int64   `json:"total"`
	Available   int64   `json:"available"`
	Rented      int64   `json:"rented"`
	Active      int64   `json:"active"`
	AverageRent float64 `json:"averageRent"`
}

// MonthlyCount 按月计数
type MonthlyCount struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Count int64 `json:"count"`
}

// ApplicationStats 申请统计
type ApplicationStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
	Monthly  []MonthlyCount   `json:"monthly"`
}

// MonthlySeries 将按 (年, 月) 聚合的计数补齐为 since 所在月到 now 所在月的连续序列
func MonthlySeries(since, now time.Time, counts map[[2]int]int64) []MonthlyCount {
	since, now = since.UTC(), now.UTC()
	cur := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	series := []MonthlyCount{}
	for !cur.After(end) {
		key := [2]int{cur.Year(), int(cur.Month())}
		series = append(series, MonthlyCount{Year: key[0], Month: key[1], Count: counts[key]})
		cur = cur.AddDate(0, 1, 0)
	}
	return series
}
