package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// ============================================================================
// 房源枚举
// ============================================================================

// AvailabilityStatus 房源可租状态（与生命周期状态相互独立）
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityRented      AvailabilityStatus = "rented"
	AvailabilityMaintenance AvailabilityStatus = "maintenance"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
)

// ApartmentStatus 房源生命周期状态
type ApartmentStatus string

const (
	ApartmentStatusActive   ApartmentStatus = "active"
	ApartmentStatusInactive ApartmentStatus = "inactive"
	ApartmentStatusPending  ApartmentStatus = "pending"
	ApartmentStatusSold     ApartmentStatus = "sold"
)

// RentPeriod 租金周期
type RentPeriod string

const (
	RentMonthly RentPeriod = "monthly"
	RentWeekly  RentPeriod = "weekly"
	RentDaily   RentPeriod = "daily"
)

var (
	availabilityStatuses = []AvailabilityStatus{AvailabilityAvailable, AvailabilityRented, AvailabilityMaintenance, AvailabilityUnavailable}
	apartmentStatuses    = []ApartmentStatus{ApartmentStatusActive, ApartmentStatusInactive, ApartmentStatusPending, ApartmentStatusSold}
	rentPeriods          = []RentPeriod{RentMonthly, RentWeekly, RentDaily}
	currencies           = []string{"USD", "EUR", "GBP", "CAD", "AUD"}
)

// ValidAvailability 判断可租状态是否合法
func ValidAvailability(s AvailabilityStatus) bool { return contains(availabilityStatuses, s) }

// ValidApartmentStatus 判断生命周期状态是否合法
func ValidApartmentStatus(s ApartmentStatus) bool { return contains(apartmentStatuses, s) }

// 房源限制
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
	MaxAmenities         = 50
	MaxImages            = 20
	MaxRooms             = 20
	MaxSquareFeet        = 100000
	MaxRentAmount        = 1000000
)

// ============================================================================
// Apartment - 房源
// ============================================================================

// PropertyDetails 房屋参数
type PropertyDetails struct {
	Bedrooms    int  `json:"bedrooms" bson:"bedrooms"`
	Bathrooms   int  `json:"bathrooms" bson:"bathrooms"`
	SquareFeet  int  `json:"squareFeet" bson:"square_feet"`
	FloorNumber *int `json:"floorNumber,omitempty" bson:"floor_number,omitempty"`
	TotalFloors *int `json:"totalFloors,omitempty" bson:"total_floors,omitempty"`
	YearBuilt   *int `json:"yearBuilt,omitempty" bson:"year_built,omitempty"`
}

// Rent 租金
type Rent struct {
	Amount   float64    `json:"amount" bson:"amount"`
	Currency string     `json:"currency" bson:"currency"`
	Period   RentPeriod `json:"period" bson:"period"`
}

// Utilities 水电杂费
type Utilities struct {
	Included    []string `json:"included" bson:"included"`
	NotIncluded []string `json:"notIncluded" bson:"not_included"`
}

// Availability 可租信息
type Availability struct {
	Status        AvailabilityStatus `json:"status" bson:"status"`
	AvailableFrom *time.Time         `json:"availableFrom,omitempty" bson:"available_from,omitempty"`
	LeaseTerm     string             `json:"leaseTerm,omitempty" bson:"lease_term,omitempty"`
}

// Apartment 房源，归属于一个 Owner
type Apartment struct {
	ID              string          `json:"id" bson:"_id"`
	Title           string          `json:"title" bson:"title"`
	Description     string          `json:"description" bson:"description"`
	Address         Address         `json:"address" bson:"address"`
	PropertyDetails PropertyDetails `json:"propertyDetails" bson:"property_details"`
	Amenities       []string        `json:"amenities" bson:"amenities"`
	Rent            Rent            `json:"rent" bson:"rent"`
	Utilities       Utilities       `json:"utilities" bson:"utilities"`
	Availability    Availability    `json:"availability" bson:"availability"`
	Images          []string        `json:"images" bson:"images"`
	OwnerID         string          `json:"ownerId" bson:"owner_id"`
	Status          ApartmentStatus `json:"status" bson:"status"`
	CreatedAt       time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updated_at"`
}

// MonthlyRent 折算月租（周租 ×4.33，日租 ×30），保留两位小数
func (a *Apartment) MonthlyRent() float64 {
	amount := a.Rent.Amount
	switch a.Rent.Period {
	case RentWeekly:
		amount *= 4.33
	case RentDaily:
		amount *= 30
	}
	return math.Round(amount*100) / 100
}

// PropertyType 户型描述
func (a *Apartment) PropertyType() string {
	if a.PropertyDetails.Bedrooms == 0 {
		return "Studio"
	}
	return fmt.Sprintf("%d Bedroom", a.PropertyDetails.Bedrooms)
}

// IsOpenForApplications 是否可以接受新申请
func (a *Apartment) IsOpenForApplications() bool {
	return a.Availability.Status == AvailabilityAvailable && a.Status == ApartmentStatusActive
}

// Normalize 规范化字段并补全默认值
func (a *Apartment) Normalize() {
	a.Title = strings.TrimSpace(a.Title)
	a.Description = strings.TrimSpace(a.Description)
	a.Address.Normalize()
	if a.Rent.Currency == "" {
		a.Rent.Currency = "USD"
	}
	a.Rent.Currency = strings.ToUpper(a.Rent.Currency)
	if a.Rent.Period == "" {
		a.Rent.Period = RentMonthly
	}
	if a.Availability.Status == "" {
		a.Availability.Status = AvailabilityAvailable
	}
	if a.Status == "" {
		a.Status = ApartmentStatusActive
	}
	if a.Amenities == nil {
		a.Amenities = []string{}
	}
	if a.Images == nil {
		a.Images = []string{}
	}
	if a.Utilities.Included == nil {
		a.Utilities.Included = []string{}
	}
	if a.Utilities.NotIncluded == nil {
		a.Utilities.NotIncluded = []string{}
	}
}

// Validate 校验房源字段
func (a *Apartment) Validate() error {
	switch {
	case a.Title == "":
		return invalid("title", "title is required")
	case len(a.Title) > MaxTitleLength:
		return invalid("title", "title cannot exceed %d characters", MaxTitleLength)
	case a.Description == "":
		return invalid("description", "description is required")
	case len(a.Description) > MaxDescriptionLength:
		return invalid("description", "description cannot exceed %d characters", MaxDescriptionLength)
	case a.OwnerID == "":
		return invalid("ownerId", "owner is required")
	}
	if err := a.Address.validateRequired("address"); err != nil {
		return err
	}
	if err := a.PropertyDetails.validate(time.Now()); err != nil {
		return err
	}
	if len(a.Amenities) > MaxAmenities {
		return invalid("amenities", "cannot have more than %d amenities", MaxAmenities)
	}
	if a.Rent.Amount < 0 || a.Rent.Amount > MaxRentAmount {
		return invalid("rent.amount", "rent amount must be between 0 and %d", MaxRentAmount)
	}
	if !contains(currencies, a.Rent.Currency) {
		return invalid("rent.currency", "unsupported currency %q", a.Rent.Currency)
	}
	if !contains(rentPeriods, a.Rent.Period) {
		return invalid("rent.period", "unknown rent period %q", a.Rent.Period)
	}
	if !ValidAvailability(a.Availability.Status) {
		return invalid("availability.status", "unknown availability status %q", a.Availability.Status)
	}
	if len(a.Images) > MaxImages {
		return invalid("images", "cannot have more than %d images", MaxImages)
	}
	if !ValidApartmentStatus(a.Status) {
		return invalid("status", "unknown status %q", a.Status)
	}
	return nil
}

func (d PropertyDetails) validate(now time.Time) error {
	switch {
	case d.Bedrooms < 0 || d.Bedrooms > MaxRooms:
		return invalid("propertyDetails.bedrooms", "bedrooms must be between 0 and %d", MaxRooms)
	case d.Bathrooms < 0 || d.Bathrooms > MaxRooms:
		return invalid("propertyDetails.bathrooms", "bathrooms must be between 0 and %d", MaxRooms)
	case d.SquareFeet < 1 || d.SquareFeet > MaxSquareFeet:
		return invalid("propertyDetails.squareFeet", "square feet must be between 1 and %d", MaxSquareFeet)
	case d.FloorNumber != nil && *d.FloorNumber < 0:
		return invalid("propertyDetails.floorNumber", "floor number cannot be negative")
	case d.TotalFloors != nil && *d.TotalFloors < 1:
		return invalid("propertyDetails.totalFloors", "total floors must be at least 1")
	case d.YearBuilt != nil && (*d.YearBuilt < 1800 || *d.YearBuilt > now.Year()+5):
		return invalid("propertyDetails.yearBuilt", "year built must be between 1800 and %d", now.Year()+5)
	}
	return nil
}

// MarshalJSON 附带 fullAddress / monthlyRent / propertyType 派生字段
func (a Apartment) MarshalJSON() ([]byte, error) {
	type alias Apartment
	return json.Marshal(struct {
		alias
		FullAddress  string  `json:"fullAddress"`
		MonthlyRent  float64 `json:"monthlyRent"`
		PropertyType string  `json:"propertyType"`
	}{alias(a), a.Address.Full(), a.MonthlyRent(), a.PropertyType()})
}
